// Package monitoring exposes Prometheus metrics and a run health snapshot.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compass_runs_started_total",
			Help: "Total number of analysis runs started",
		},
	)

	RunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_runs_finished_total",
			Help: "Total number of analysis runs finished by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compass_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	StageTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_stage_tokens_total",
			Help: "Reasoning engine tokens consumed per stage",
		},
		[]string{"stage", "direction"},
	)

	// Research tool metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_tool_calls_total",
			Help: "Research tool calls by operation, provider and result",
		},
		[]string{"op", "provider", "result"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_tool_cache_hits_total",
			Help: "Research tool calls served from cache",
		},
		[]string{"op"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compass_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// Budget metrics
	LedgerSpend = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compass_ledger_spend_usd",
			Help: "Total spend recorded in the cost ledger",
		},
	)

	BudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compass_budget_remaining_usd",
			Help: "Remaining budget under the global cap",
		},
	)

	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_ledger_entries_total",
			Help: "Cost ledger entries recorded by operation",
		},
		[]string{"operation"},
	)
)
