package model

import (
	"time"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPartial   RunStatus = "partial"
	RunStatusComplete  RunStatus = "complete" // alias of completed
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusPartial, RunStatusComplete, RunStatusCompleted, RunStatusError:
		return true
	}
	return false
}

// Phase is the coarse workflow phase a run is in.
type Phase string

const (
	PhaseDiscovery    Phase = "discovery"
	PhaseResearch     Phase = "research"
	PhaseVerification Phase = "verification"
	PhaseSynthesis    Phase = "synthesis"
)

// Route is the research strategy selected after discovery.
type Route string

const (
	RouteFullResearch   Route = "full_research"
	RouteFallbackSearch Route = "fallback_search"
)

// Company is the immutable input of a run.
type Company struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// Run represents a single analysis run for a company.
type Run struct {
	ID        string     `json:"id"`
	Company   Company    `json:"company"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Status     RunStatus          `json:"status"`
	Route      Route              `json:"route,omitempty"`
	Cost       map[string]float64 `json:"cost"`
	Confidence map[string]float64 `json:"confidence_scores"`
	Errors     []ErrorEntry       `json:"errors"`
	Stages     []StageResult      `json:"stages"`
	LedgerUSD  float64            `json:"ledger_usd"`
	Insights   *Insights          `json:"insights,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
}

// ErrorEntry records a stage or orchestration failure. Entries are never removed.
type ErrorEntry struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorEntry stamps an error entry with the current UTC time.
func NewErrorEntry(stage, message string) ErrorEntry {
	return ErrorEntry{Stage: stage, Message: message, Timestamp: time.Now().UTC()}
}

// RunStage represents a stage execution within a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageStatus represents the current state of a stage execution.
type StageStatus string

const (
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusDegraded  StageStatus = "degraded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageResult holds the outcome of a stage execution.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Outcome    string         `json:"outcome,omitempty"`
	Duration   int64          `json:"duration_ms"`
	Confidence float64        `json:"confidence"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
