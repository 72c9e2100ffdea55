// Package budget keeps the append-only cost ledger and answers budget
// questions from its sums.
package budget

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/monitoring"
)

// Cost kind prefixes. A kind is "<prefix>:<detail>", e.g. "llm:news" or
// "research:search".
const (
	KindLLM      = "llm"
	KindResearch = "research"
)

// DefaultOutputTokens is the output size assumed when estimating a model call.
const DefaultOutputTokens = 1500

// recentEntries is the number of ledger entries included in a Status.
const recentEntries = 10

// Health levels reported by Status.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// ErrBudgetExceeded is returned by Allow when a strict ledger refuses spend.
var ErrBudgetExceeded = eris.New("budget: cap exceeded")

// Store is the persistence the ledger needs.
type Store interface {
	AppendLedger(ctx context.Context, entry model.LedgerEntry) error
	SumLedger(ctx context.Context, runID string) (float64, error)
	ListLedger(ctx context.Context, limit int) ([]model.LedgerEntry, error)
}

// Config controls ledger thresholds.
type Config struct {
	CapUSD        float64
	PerRunWarnUSD float64
	Strict        bool
	// Model prices estimates of reasoning engine calls.
	Model string
}

// Status is a derived view of the ledger against the cap.
type Status struct {
	Cap           float64             `json:"cap"`
	CurrentSpend  float64             `json:"current_spend"`
	Remaining     float64             `json:"remaining"`
	PercentUsed   float64             `json:"percent_used"`
	RecentEntries []model.LedgerEntry `json:"recent_entries"`
	HealthLevel   string              `json:"health_level"`
}

// Ledger records every cost-incurring operation and checks new spend
// against the global cap. It keeps no counters; every answer is a ledger sum.
type Ledger struct {
	store Store
	calc  *cost.Calculator
	cfg   Config
	now   func() time.Time
}

// New creates a ledger over st priced by calc.
func New(st Store, calc *cost.Calculator, cfg Config) *Ledger {
	if cfg.PerRunWarnUSD <= 0 {
		cfg.PerRunWarnUSD = 2.0
	}
	return &Ledger{store: st, calc: calc, cfg: cfg, now: time.Now}
}

// Strict reports whether over-cap spend is refused.
func (l *Ledger) Strict() bool { return l.cfg.Strict }

// Kind joins a prefix and detail into a cost kind.
func Kind(prefix, detail string) string {
	return prefix + ":" + detail
}

// EstimateCost prices an operation before it runs. For llm kinds size is the
// prompt length in characters; for research kinds it is ignored.
func (l *Ledger) EstimateCost(kind string, size int) float64 {
	prefix, detail, _ := strings.Cut(kind, ":")
	switch prefix {
	case KindLLM:
		return l.calc.Claude(l.cfg.Model, size/4, DefaultOutputTokens, 0, 0)
	case KindResearch:
		return l.calc.Credits(l.calc.OpCredits(detail))
	default:
		return 0
	}
}

// CheckBudget reports whether estimated spend fits under the cap. Over the
// cap it logs and returns true when warnOnly is set, false otherwise.
func (l *Ledger) CheckBudget(ctx context.Context, estimated float64, warnOnly bool) (bool, error) {
	total, err := l.store.SumLedger(ctx, "")
	if err != nil {
		return false, eris.Wrap(err, "budget: sum ledger")
	}

	if runID := RunIDFrom(ctx); runID != "" {
		runSpend, err := l.store.SumLedger(ctx, runID)
		if err != nil {
			return false, eris.Wrap(err, "budget: sum run ledger")
		}
		if runSpend+estimated > l.cfg.PerRunWarnUSD {
			zap.L().Warn("budget: run spend above warning threshold",
				zap.String("run_id", runID),
				zap.Float64("run_spend", runSpend),
				zap.Float64("estimated", estimated),
				zap.Float64("threshold", l.cfg.PerRunWarnUSD),
			)
		}
	}

	if total+estimated <= l.cfg.CapUSD {
		return true, nil
	}

	zap.L().Warn("budget: cap exceeded",
		zap.Float64("spend", total),
		zap.Float64("estimated", estimated),
		zap.Float64("cap", l.cfg.CapUSD),
		zap.Bool("warn_only", warnOnly),
	)
	return warnOnly, nil
}

// Allow checks estimated spend with the configured strictness. A ledger read
// failure is logged and the spend allowed.
func (l *Ledger) Allow(ctx context.Context, estimated float64) error {
	ok, err := l.CheckBudget(ctx, estimated, !l.cfg.Strict)
	if err != nil {
		zap.L().Warn("budget: check failed, allowing", zap.Error(err))
		return nil
	}
	if !ok {
		return ErrBudgetExceeded
	}
	return nil
}

// RecordCost appends one immutable entry for an operation that happened.
func (l *Ledger) RecordCost(ctx context.Context, kind string, actual, units float64, meta map[string]any) (model.LedgerEntry, error) {
	entry := model.LedgerEntry{
		ID:        ulid.Make().String(),
		RunID:     RunIDFrom(ctx),
		Operation: kind,
		Cost:      actual,
		Units:     units,
		Metadata:  meta,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.AppendLedger(ctx, entry); err != nil {
		return model.LedgerEntry{}, eris.Wrapf(err, "budget: record %s", kind)
	}

	monitoring.LedgerEntries.WithLabelValues(kind).Inc()
	if total, err := l.store.SumLedger(ctx, ""); err == nil {
		monitoring.LedgerSpend.Set(total)
		monitoring.BudgetRemaining.Set(l.cfg.CapUSD - total)
	}

	zap.L().Debug("budget: cost recorded",
		zap.String("run_id", entry.RunID),
		zap.String("op", kind),
		zap.Float64("cost", actual),
		zap.Float64("units", units),
	)
	return entry, nil
}

// Status summarises spend against the cap.
func (l *Ledger) Status(ctx context.Context) (*Status, error) {
	total, err := l.store.SumLedger(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "budget: sum ledger")
	}
	recent, err := l.store.ListLedger(ctx, recentEntries)
	if err != nil {
		return nil, eris.Wrap(err, "budget: list ledger")
	}
	if recent == nil {
		recent = []model.LedgerEntry{}
	}

	remaining := l.cfg.CapUSD - total
	var pct float64
	if l.cfg.CapUSD > 0 {
		pct = total / l.cfg.CapUSD * 100
	}
	return &Status{
		Cap:           l.cfg.CapUSD,
		CurrentSpend:  total,
		Remaining:     remaining,
		PercentUsed:   pct,
		RecentEntries: recent,
		HealthLevel:   healthLevel(remaining),
	}, nil
}

// History returns the most recent ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	entries, err := l.store.ListLedger(ctx, limit)
	return entries, eris.Wrap(err, "budget: history")
}

// RunSpend returns the ledger total of one run.
func (l *Ledger) RunSpend(ctx context.Context, runID string) (float64, error) {
	total, err := l.store.SumLedger(ctx, runID)
	return total, eris.Wrapf(err, "budget: run spend %s", runID)
}

func healthLevel(remaining float64) string {
	switch {
	case remaining > 2.0:
		return HealthHealthy
	case remaining > 0.5:
		return HealthWarning
	default:
		return HealthCritical
	}
}
