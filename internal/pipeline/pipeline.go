// Package pipeline drives analysis runs: it builds the stage graph, tracks
// and persists every stage as it completes and writes the final result.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/monitoring"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/internal/runstate"
	"github.com/sells-group/compass-cli/internal/stage"
	"github.com/sells-group/compass-cli/internal/store"
	"github.com/sells-group/compass-cli/internal/workflow"
)

// StageOrchestrator is the error-entry stage of orchestration failures.
const StageOrchestrator = "orchestrator"

// Pipeline runs company analyses.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	ledger *budget.Ledger
	deps   stage.Deps
	stages []stage.Stage

	wg sync.WaitGroup
}

// Report is the outcome of a synchronous run.
type Report struct {
	RunID  string           `json:"run_id"`
	State  runstate.State   `json:"state"`
	Result *model.RunResult `json:"result"`
}

// New creates a Pipeline. The ledger may be nil, in which case ledger spend
// is not reported.
func New(cfg *config.Config, st store.Store, engine agent.Runner, researcher agent.Researcher, ledger *budget.Ledger) (*Pipeline, error) {
	deps := stage.Deps{
		Engine:          engine,
		Research:        researcher,
		ToolOutputLimit: cfg.Research.MaxOutputChars,
	}
	if cfg.Pipeline.StageAttempts > 0 {
		deps.Policy = resilience.StagePolicy()
		deps.Policy.Attempts = cfg.Pipeline.StageAttempts
	}
	if cfg.Pipeline.StageTimeoutSecs > 0 {
		deps.Timeout = time.Duration(cfg.Pipeline.StageTimeoutSecs) * time.Second
	}

	p := &Pipeline{
		cfg:    cfg,
		store:  st,
		ledger: ledger,
		deps:   deps,
		stages: Stages(deps),
	}
	if _, err := p.graph(&tracker{}); err != nil {
		return nil, eris.Wrap(err, "pipeline: build graph")
	}
	return p, nil
}

// Stages returns the bound stages of a run in declaration order.
func Stages(deps stage.Deps) []stage.Stage {
	return []stage.Stage{
		stage.Bind(stage.Discovery(), deps),
		stage.Bind(stage.News(), deps),
		stage.Bind(stage.Founders(), deps),
		stage.Bind(stage.Competitive(), deps),
		stage.Bind(stage.Patents(), deps),
		stage.Bind(stage.DeepDive(), deps),
		stage.Bind(stage.Verification(), deps),
		stage.Bind(stage.Synthesis(), deps),
	}
}

// Start creates a run and executes it in the background. It returns as soon
// as the run record exists.
func (p *Pipeline) Start(ctx context.Context, company model.Company) (string, error) {
	company, err := normalizeCompany(company)
	if err != nil {
		return "", err
	}
	run, err := p.store.CreateRun(ctx, company)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: create run")
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.execute(context.WithoutCancel(ctx), run.ID, company); err != nil {
			zap.L().Error("pipeline: run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	return run.ID, nil
}

// Wait blocks until every run started with Start has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Run creates a run and executes it to completion. A run whose stages
// failed still returns a report and no error; the error is reserved for
// orchestration failures.
func (p *Pipeline) Run(ctx context.Context, company model.Company) (*Report, error) {
	company, err := normalizeCompany(company)
	if err != nil {
		return nil, err
	}
	run, err := p.store.CreateRun(ctx, company)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return p.execute(ctx, run.ID, company)
}

func normalizeCompany(c model.Company) (model.Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	if c.Name == "" {
		return c, eris.New("pipeline: company name is required")
	}
	return c, nil
}

// tracker collects the stage records of one run.
type tracker struct {
	mu     sync.Mutex
	stages []model.StageResult
}

func (t *tracker) add(r model.StageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, r)
}

// ordered returns the records in graph order, with a skipped record for
// every node that never ran.
func (t *tracker) ordered(order []string) []model.StageResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	byName := make(map[string]model.StageResult, len(t.stages))
	for _, r := range t.stages {
		byName[r.Name] = r
	}
	out := make([]model.StageResult, 0, len(order))
	for _, name := range order {
		r, ok := byName[name]
		if !ok {
			r = model.StageResult{Name: name, Status: model.StageStatusSkipped}
		}
		out = append(out, r)
	}
	return out
}

// graph wires the stages into the run topology: discovery, then the five
// research stages concurrently, then verification, then synthesis.
func (p *Pipeline) graph(tr *tracker) (*workflow.Graph, error) {
	nodes := make([]workflow.Node, 0, len(p.stages))
	for _, st := range p.stages {
		var after []string
		switch {
		case st.Name() == stage.NameDiscovery:
		case slices.Contains(stage.Research, st.Name()):
			after = []string{stage.NameDiscovery}
		case st.Name() == stage.NameVerification:
			after = stage.Research
		case st.Name() == stage.NameSynthesis:
			after = []string{stage.NameVerification}
		default:
			return nil, eris.Errorf("pipeline: stage %q has no place in the graph", st.Name())
		}
		nodes = append(nodes, workflow.Node{
			Name:  st.Name(),
			Phase: st.Phase(),
			After: after,
			Run: func(ctx context.Context, snap runstate.State) runstate.Delta {
				return p.trackStage(ctx, st, snap, tr)
			},
		})
	}
	router := workflow.ThresholdRouter(stage.NameDiscovery, p.cfg.Pipeline.RoutingThreshold, workflow.SkipMap(p.cfg.Pipeline.SkipStages))
	return workflow.New(nodes, router)
}

// trackStage records a stage execution in the store around the stage run.
func (p *Pipeline) trackStage(ctx context.Context, st stage.Stage, snap runstate.State, tr *tracker) runstate.Delta {
	log := zap.L().With(zap.String("run_id", snap.RunID), zap.String("stage", st.Name()))

	rec, err := p.store.CreateStage(ctx, snap.RunID, st.Name())
	if err != nil {
		log.Warn("pipeline: failed to create stage", zap.Error(err))
	}

	rep := st.Execute(ctx, snap)

	if rec != nil {
		if err := p.store.CompleteStage(ctx, rec.ID, &rep.Record); err != nil {
			log.Warn("pipeline: failed to complete stage", zap.Error(err))
		}
	}
	tr.add(rep.Record)

	if rep.Record.Status == model.StageStatusFailed {
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", rep.Record.Duration),
			zap.String("error", rep.Record.Error),
		)
	} else {
		log.Info("pipeline: stage complete",
			zap.String("outcome", rep.Record.Outcome),
			zap.Int64("duration_ms", rep.Record.Duration),
			zap.Float64("confidence", rep.Record.Confidence),
		)
	}
	return rep.Delta
}

// execute runs the graph for an existing run and always finalizes it.
func (p *Pipeline) execute(ctx context.Context, runID string, company model.Company) (report *Report, err error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("company", company.Name))
	log.Info("pipeline: starting run")
	monitoring.RunsStarted.Inc()
	start := time.Now()

	ctx = budget.WithRunID(ctx, runID)
	acc := runstate.NewAccumulator(runstate.New(runID, company))
	tr := &tracker{}
	var order []string

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: panic: %v", r)
		}
		if err != nil {
			acc.Apply(runstate.Delta{
				Status: model.RunStatusError,
				Errors: []model.ErrorEntry{model.NewErrorEntry(StageOrchestrator, err.Error())},
			})
		}
		report = p.finalize(context.WithoutCancel(ctx), acc, tr, order, start)
	}()

	g, err := p.graph(tr)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build graph")
	}
	order = g.Order()

	err = g.Execute(ctx, acc, workflow.Options{
		OnNodeDone: func(ctx context.Context, node workflow.Node, delta runstate.Delta, _ runstate.State) {
			p.persist(context.WithoutCancel(ctx), runID, delta)
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: execute graph")
	}
	return nil, nil
}

// finalize performs the terminal status write and stores the run result.
func (p *Pipeline) finalize(ctx context.Context, acc *runstate.Accumulator, tr *tracker, order []string, start time.Time) *Report {
	final := acc.Finalize()
	log := zap.L().With(zap.String("run_id", final.RunID))

	if len(order) == 0 {
		for _, st := range p.stages {
			order = append(order, st.Name())
		}
	}

	result := &model.RunResult{
		Status:     final.Status,
		Route:      final.Route,
		Cost:       final.Cost,
		Confidence: final.ConfidenceScores,
		Errors:     final.Errors,
		Stages:     tr.ordered(order),
		Insights:   final.Insights,
		FinishedAt: time.Now().UTC(),
	}
	if p.ledger != nil {
		spend, err := p.ledger.RunSpend(ctx, final.RunID)
		if err != nil {
			log.Warn("pipeline: failed to sum run spend", zap.Error(err))
		}
		result.LedgerUSD = spend
	}

	if err := p.store.UpdateRunResult(ctx, final.RunID, result); err != nil {
		log.Error("pipeline: failed to store run result", zap.Error(err))
		if err := p.store.UpdateRunStatus(ctx, final.RunID, final.Status); err != nil {
			log.Error("pipeline: failed to update status", zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	monitoring.RunsFinished.WithLabelValues(string(final.Status)).Inc()
	monitoring.RunDuration.Observe(elapsed.Seconds())

	log.Info("pipeline: run finished",
		zap.String("status", string(final.Status)),
		zap.String("route", string(final.Route)),
		zap.Int("errors", len(final.Errors)),
		zap.Float64("llm_usd", final.Cost[model.CostLLMUSD]),
		zap.Float64("ledger_usd", result.LedgerUSD),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return &Report{RunID: final.RunID, State: final, Result: result}
}

// String summarizes a report for CLI output.
func (r *Report) String() string {
	if r == nil || r.Result == nil {
		return "no result"
	}
	return fmt.Sprintf("run %s: %s (route %s, %d errors, $%.4f)",
		r.RunID, r.Result.Status, r.Result.Route, len(r.Result.Errors), r.Result.LedgerUSD)
}
