// Package stage implements the research stages of a run. Every stage follows
// the same contract: it reads a snapshot of the run state, asks the reasoning
// engine for a structured result, degrades to a heuristic parse of the
// model's text and finally to a labelled placeholder, and returns a delta.
// A stage never returns an error.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/monitoring"
	"github.com/sells-group/compass-cli/internal/research"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// Stage names. They double as state keys and confidence keys.
const (
	NameDiscovery    = "discovery"
	NameNews         = "news"
	NameFounders     = "founders"
	NameCompetitive  = "competitive"
	NamePatents      = "patents"
	NameDeepDive     = "deepdive"
	NameVerification = "verification"
	NameSynthesis    = "synthesis"
)

// Research lists the stages that run concurrently after routing.
var Research = []string{NameNews, NameFounders, NameCompetitive, NamePatents, NameDeepDive}

// Kind is how a stage result was obtained.
type Kind int

const (
	KindStructured Kind = iota + 1
	KindHeuristic
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindHeuristic:
		return "heuristic"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Confidence bands. A structured result always outranks a heuristic one and
// a heuristic one always outranks the placeholder.
const (
	StructuredFloor    = 0.5
	StructuredDefault  = 0.8
	HeuristicFloor     = 0.2
	HeuristicCeiling   = 0.45
	HeuristicDefault   = 0.4
	FallbackConfidence = 0.1
)

// Result is the resolved output of a stage.
type Result[T any] struct {
	Kind       Kind
	Value      T
	Confidence float64
	// Reason explains a degraded result.
	Reason string
}

// Evidence is what a stage gathered before calling the engine.
type Evidence struct {
	Site     string
	URLs     []string
	KeyPages map[string]string
	Notes    []string
}

// Task is the prompt for one engine call.
type Task struct {
	Instructions string
	Prompt       string
}

// Spec describes one stage. Only Name, Phase, Task, Fallback and Delta are
// required.
type Spec[T any] struct {
	Name  string
	Phase model.Phase
	// Schema is offered to the model as the submit_result tool.
	Schema *agent.Schema
	// Tools gives the model the research tools.
	Tools    bool
	MaxTurns int

	Gather     func(ctx context.Context, r agent.Researcher, s runstate.State) (Evidence, error)
	Task       func(s runstate.State, ev Evidence) Task
	Confidence func(v T) float64

	Hints     extract.Hints
	Heuristic func(doc extract.Document, s runstate.State, ev Evidence) (T, bool)
	Fallback  func(s runstate.State, ev Evidence, reason string) T
	Delta     func(r Result[T], s runstate.State, ev Evidence) runstate.Delta
}

// Deps are the collaborators shared by every stage.
type Deps struct {
	Engine   agent.Runner
	Research agent.Researcher
	// Policy wraps the whole engine call. Zero means resilience.StagePolicy.
	Policy          resilience.Policy
	ToolOutputLimit int
	// Timeout bounds one stage; 0 means no deadline.
	Timeout time.Duration
}

// Report is the outcome of one stage execution.
type Report struct {
	Delta  runstate.Delta
	Record model.StageResult
}

// Stage is a bound, type-erased stage.
type Stage interface {
	Name() string
	Phase() model.Phase
	Execute(ctx context.Context, snap runstate.State) Report
}

type bound[T any] struct {
	spec Spec[T]
	deps Deps
}

// Bind attaches dependencies to a spec.
func Bind[T any](spec Spec[T], deps Deps) Stage {
	return &bound[T]{spec: spec, deps: deps}
}

func (b *bound[T]) Name() string       { return b.spec.Name }
func (b *bound[T]) Phase() model.Phase { return b.spec.Phase }

func (b *bound[T]) Execute(ctx context.Context, snap runstate.State) Report {
	return Run(ctx, b.spec, b.deps, snap)
}

// Run executes a stage against a snapshot. It recovers panics into a
// fallback report with an error entry.
func Run[T any](ctx context.Context, spec Spec[T], deps Deps, snap runstate.State) (rep Report) {
	start := time.Now()
	log := zap.L().With(zap.String("stage", spec.Name), zap.String("run_id", snap.RunID))

	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
	}
	usage := &research.Usage{}
	ctx = research.WithUsage(ctx, usage)

	var tokens model.TokenUsage
	var ev Evidence

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("stage %s panicked: %v", spec.Name, r)
			log.Error("stage: panic recovered", zap.Any("panic", r))
			rep = recovered(spec, snap, ev, err, tokens, usage.Snapshot(), start)
		}
	}()

	var gatherErr error
	if spec.Gather != nil && deps.Research != nil {
		ev, gatherErr = spec.Gather(ctx, deps.Research, snap)
		if gatherErr != nil {
			log.Warn("stage: gather failed", zap.Error(gatherErr))
		}
	}

	out, err := invoke(ctx, spec, deps, snap, ev, &tokens)
	if err != nil {
		log.Warn("stage: engine failed", zap.Error(err))
	}

	res := resolve(spec, snap, ev, out, err)
	// A gather failure only matters when nothing better came back.
	if err == nil && res.Kind == KindFallback && gatherErr != nil {
		err = gatherErr
	}
	return finish(spec, snap, ev, res, err, tokens, usage.Snapshot(), start)
}

// invoke calls the engine with retries. The last partial outcome is kept so
// its text can still feed the heuristic parse.
func invoke[T any](ctx context.Context, spec Spec[T], deps Deps, snap runstate.State, ev Evidence, tokens *model.TokenUsage) (*agent.Outcome, error) {
	if deps.Engine == nil {
		return nil, eris.Errorf("stage %s: no reasoning engine configured", spec.Name)
	}

	task := spec.Task(snap, ev)
	req := agent.Request{
		Stage:        spec.Name,
		Preamble:     preamble,
		Instructions: task.Instructions,
		Prompt:       task.Prompt,
		Schema:       spec.Schema,
		MaxTurns:     spec.MaxTurns,
	}
	if spec.Tools && deps.Research != nil {
		reg, err := agent.NewResearchRegistry(deps.Research, deps.ToolOutputLimit)
		if err != nil {
			return nil, eris.Wrapf(err, "stage %s: build tools", spec.Name)
		}
		req.Tools = reg
	}

	policy := deps.Policy
	if policy.Attempts == 0 {
		policy = resilience.StagePolicy()
	}
	policy.OnRetry = resilience.LogRetries("stage", spec.Name)

	var last *agent.Outcome
	out, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*agent.Outcome, error) {
		o, err := deps.Engine.Run(ctx, req)
		if o != nil {
			tokens.Add(o.Usage)
			last = o
		}
		return o, err
	})
	if err != nil {
		return last, eris.Wrapf(err, "stage %s", spec.Name)
	}
	return out, nil
}

// resolve picks the best available result: the validated submission, then a
// heuristic parse of the model's text, then the placeholder.
func resolve[T any](spec Spec[T], snap runstate.State, ev Evidence, out *agent.Outcome, runErr error) Result[T] {
	reason := "no structured result"
	if runErr != nil {
		reason = runErr.Error()
	}

	if out != nil && len(out.Structured) > 0 {
		var v T
		err := json.Unmarshal(out.Structured, &v)
		if err == nil {
			conf := StructuredDefault
			if spec.Confidence != nil {
				if c := spec.Confidence(v); c > 0 {
					conf = c
				}
			}
			return Result[T]{Kind: KindStructured, Value: v, Confidence: clamp(conf, StructuredFloor, 1)}
		}
		reason = fmt.Sprintf("decode structured result: %v", err)
	}

	if out != nil && spec.Heuristic != nil && strings.TrimSpace(out.Text) != "" {
		doc := extract.Parse(out.Text, spec.Hints)
		if !doc.Empty() {
			if v, ok := spec.Heuristic(doc, snap, ev); ok {
				conf := HeuristicDefault
				if doc.HasConfidence {
					conf = doc.Confidence
				}
				return Result[T]{
					Kind:       KindHeuristic,
					Value:      v,
					Confidence: clamp(conf, HeuristicFloor, HeuristicCeiling),
					Reason:     reason,
				}
			}
		}
	}

	return Result[T]{
		Kind:       KindFallback,
		Value:      spec.Fallback(snap, ev, reason),
		Confidence: FallbackConfidence,
		Reason:     reason,
	}
}

func finish[T any](spec Spec[T], snap runstate.State, ev Evidence, res Result[T], err error, tokens model.TokenUsage, usage research.UsageSnapshot, start time.Time) Report {
	d := spec.Delta(res, snap, ev)

	status := model.RunStatusRunning
	if res.Kind != KindStructured {
		status = model.RunStatusPartial
	}
	d = annotate(d, spec.Name, spec.Phase, status, res.Confidence, tokens, usage)
	if err != nil {
		d.Errors = append(d.Errors, model.NewErrorEntry(spec.Name, err.Error()))
	}

	rec := record(spec.Name, res.Kind, res.Confidence, res.Reason, err, tokens, usage, start)
	zap.L().Info("stage: complete",
		zap.String("stage", spec.Name),
		zap.String("run_id", snap.RunID),
		zap.String("outcome", res.Kind.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Int("tool_calls", usage.Calls),
		zap.Int64("duration_ms", rec.Duration),
	)
	return Report{Delta: d, Record: rec}
}

// recovered builds the report of a panicking stage. If the placeholder
// builders panic too, the delta carries only the error entry.
func recovered[T any](spec Spec[T], snap runstate.State, ev Evidence, err error, tokens model.TokenUsage, usage research.UsageSnapshot, start time.Time) (rep Report) {
	defer func() {
		if r := recover(); r != nil {
			d := runstate.ErrorDelta(spec.Name, err.Error())
			d = annotate(d, spec.Name, spec.Phase, model.RunStatusPartial, 0, tokens, usage)
			rep = Report{Delta: d, Record: record(spec.Name, KindFallback, 0, err.Error(), err, tokens, usage, start)}
		}
	}()
	res := Result[T]{
		Kind:       KindFallback,
		Value:      spec.Fallback(snap, ev, err.Error()),
		Confidence: FallbackConfidence,
		Reason:     err.Error(),
	}
	return finish(spec, snap, ev, res, err, tokens, usage, start)
}

// annotate adds the bookkeeping every stage delta carries.
func annotate(d runstate.Delta, name string, phase model.Phase, status model.RunStatus, conf float64, tokens model.TokenUsage, usage research.UsageSnapshot) runstate.Delta {
	if d.ConfidenceScores == nil {
		d.ConfidenceScores = map[string]float64{}
	}
	if _, ok := d.ConfidenceScores[name]; !ok {
		d.ConfidenceScores[name] = conf
	}
	if d.Cost == nil {
		d.Cost = map[string]float64{}
	}
	d.Cost[model.CostResearchCredits] += usage.Credits
	d.Cost[model.CostLLMTokens] += float64(tokens.Total())
	d.Cost[model.CostLLMUSD] += tokens.Cost
	d.Status = runstate.MergeStatus(d.Status, status)
	d.CurrentPhase = runstate.MergePhase(d.CurrentPhase, phase)
	return d
}

func record(name string, kind Kind, conf float64, reason string, err error, tokens model.TokenUsage, usage research.UsageSnapshot, start time.Time) model.StageResult {
	status := model.StageStatusSucceeded
	switch {
	case err != nil:
		status = model.StageStatusFailed
	case kind != KindStructured:
		status = model.StageStatusDegraded
	}
	rec := model.StageResult{
		Name:       name,
		Status:     status,
		Outcome:    kind.String(),
		Duration:   time.Since(start).Milliseconds(),
		Confidence: conf,
		TokenUsage: tokens,
		Metadata: map[string]any{
			"research_calls":   usage.Calls,
			"cache_hits":       usage.CacheHits,
			"research_credits": usage.Credits,
			"research_usd":     usage.CostUSD,
		},
	}
	if kind != KindStructured && reason != "" {
		rec.Metadata["reason"] = reason
	}
	if err != nil {
		rec.Error = err.Error()
	}
	monitoring.StageDuration.WithLabelValues(name, kind.String()).Observe(time.Since(start).Seconds())
	return rec
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
