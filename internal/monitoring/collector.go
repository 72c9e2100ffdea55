package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsPartial   int     `json:"runs_partial"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	FailRate      float64 `json:"fail_rate"`
	RunCostUSD    float64 `json:"run_cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Ledger spend across all runs.
	LedgerSpendUSD float64 `json:"ledger_spend_usd"`

	// Provider circuit breakers keyed by provider.
	Breakers map[string]string `json:"breakers,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store subset needed to read runs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// LedgerSummer is the store subset needed to total the cost ledger.
type LedgerSummer interface {
	SumLedger(ctx context.Context, runID string) (float64, error)
}

// BreakerStates reports circuit breaker states by provider.
type BreakerStates interface {
	States() map[string]string
}

// Collector gathers metrics from the store and provider breakers.
type Collector struct {
	runs     RunLister
	ledger   LedgerSummer
	breakers BreakerStates
}

// NewCollector creates a new metrics collector. ledger and breakers may be nil.
func NewCollector(runs RunLister, ledger LedgerSummer, breakers BreakerStates) *Collector {
	return &Collector{runs: runs, ledger: ledger, breakers: breakers}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var confSum float64
	var confN int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted, model.RunStatusComplete:
			snap.RunsCompleted++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusError:
			snap.RunsFailed++
		case model.RunStatusRunning, model.RunStatusPending:
			snap.RunsRunning++
		}
		if r.Result == nil {
			continue
		}
		snap.RunCostUSD += r.Result.LedgerUSD
		for _, v := range r.Result.Confidence {
			confSum += v
			confN++
		}
	}

	finished := snap.RunsCompleted + snap.RunsPartial + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if confN > 0 {
		snap.AvgConfidence = confSum / float64(confN)
	}

	if c.ledger != nil {
		spend, err := c.ledger.SumLedger(ctx, "")
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: sum ledger")
		}
		snap.LedgerSpendUSD = spend
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.States()
	}

	return snap, nil
}
