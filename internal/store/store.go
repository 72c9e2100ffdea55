package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// InsertResult reports the outcome of a tolerant bulk insert.
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, company model.Company) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error
	ListStages(ctx context.Context, runID string) ([]model.RunStage, error)

	// Documents
	UpsertDocument(ctx context.Context, doc model.Document) error
	InsertDocuments(ctx context.Context, docs []model.Document) (InsertResult, error)
	ListDocuments(ctx context.Context, runID string) ([]model.Document, error)

	// Cost ledger
	AppendLedger(ctx context.Context, entry model.LedgerEntry) error
	SumLedger(ctx context.Context, runID string) (float64, error)
	ListLedger(ctx context.Context, limit int) ([]model.LedgerEntry, error)

	// Research tool cache
	GetToolCache(ctx context.Context, key string) ([]byte, error)
	SetToolCache(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredToolCache(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
