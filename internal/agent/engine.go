package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/monitoring"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/pkg/anthropic"
)

// Engine defaults.
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTurns  = 8
	DefaultMaxTokens = 4096
)

// Config controls the tool loop.
type Config struct {
	Model     string
	MaxTurns  int
	MaxTokens int64
	// TurnTimeout bounds a single model call; 0 means no per-call deadline.
	TurnTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Request is one reasoning task.
type Request struct {
	// Stage names the caller for cost attribution and logs.
	Stage string
	// Preamble is the cached system prompt shared across turns.
	Preamble     string
	Instructions string
	Prompt       string
	// Tools may be nil for a tool-free call.
	Tools *Registry
	// Schema, when set, is offered as the submit_result tool.
	Schema *Schema
	// MaxTurns overrides the engine default when positive.
	MaxTurns int
}

// Outcome is what the model produced.
type Outcome struct {
	// Structured is the validated submit_result input, nil if the model never
	// produced a valid submission.
	Structured json.RawMessage
	// Text is the model's free text across all turns.
	Text       string
	Usage      model.TokenUsage
	Turns      int
	ToolCalls  int
	StopReason string
	// Rejected counts submissions that failed schema validation.
	Rejected int
}

// Runner is the engine surface stages depend on.
type Runner interface {
	Run(ctx context.Context, req Request) (*Outcome, error)
}

// Engine drives the tool loop against the Anthropic Messages API.
type Engine struct {
	client anthropic.Client
	ledger *budget.Ledger
	calc   *cost.Calculator
	cfg    Config
}

// NewEngine creates an engine. ledger may be nil to skip budget checks.
func NewEngine(client anthropic.Client, ledger *budget.Ledger, calc *cost.Calculator, cfg Config) *Engine {
	return &Engine{client: client, ledger: ledger, calc: calc, cfg: cfg.withDefaults()}
}

// Model returns the model the engine calls.
func (e *Engine) Model() string { return e.cfg.Model }

// Run loops until the model submits a valid result, stops calling tools, or
// the turn limit is reached. On the last turn a schema request forces
// submit_result. Errors from the model call or the budget end the loop and
// are returned with the partial outcome.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	log := zap.L().With(zap.String("stage", req.Stage), zap.String("model", e.cfg.Model))

	maxTurns := e.cfg.MaxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}

	tools := e.toolDefinitions(req)
	system := systemBlocks(req)
	messages := []anthropic.Message{{Role: "user", Content: req.Prompt}}

	out := &Outcome{}
	var text []string
	kind := budget.Kind(budget.KindLLM, req.Stage)

	for turn := 1; turn <= maxTurns; turn++ {
		if e.ledger != nil {
			est := e.ledger.EstimateCost(kind, promptSize(req, messages))
			if err := e.ledger.Allow(ctx, est); err != nil {
				out.Text = strings.Join(text, "\n")
				return out, eris.Wrapf(err, "agent: %s turn %d", req.Stage, turn)
			}
		}

		mr := anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    system,
			Messages:  messages,
			Tools:     tools,
		}
		if req.Schema != nil && turn == maxTurns {
			mr.ToolChoice = SubmitToolName
		}

		resp, err := e.createMessage(ctx, mr)
		if err != nil {
			out.Text = strings.Join(text, "\n")
			return out, eris.Wrapf(err, "agent: %s turn %d", req.Stage, turn)
		}

		out.Turns = turn
		out.StopReason = resp.StopReason
		e.recordTurn(ctx, req.Stage, turn, resp.Usage, &out.Usage)

		if t := strings.TrimSpace(resp.Text()); t != "" {
			text = append(text, t)
		}

		calls := resp.ToolUses()
		if len(calls) == 0 {
			break
		}

		messages = append(messages, anthropic.Message{Role: "assistant", Blocks: resp.Content})
		results := make([]anthropic.ContentBlock, 0, len(calls))
		for _, call := range calls {
			out.ToolCalls++
			if call.Name == SubmitToolName && req.Schema != nil {
				if errs := req.Schema.Validate(call.Input); len(errs) > 0 {
					out.Rejected++
					log.Debug("agent: submission rejected", zap.Int("turn", turn), zap.Int("errors", len(errs)))
					results = append(results, anthropic.ToolResultBlock(call.ID, formatFieldErrors(errs), true))
					continue
				}
				out.Structured = append(json.RawMessage(nil), call.Input...)
				out.Text = strings.Join(text, "\n")
				return out, nil
			}
			results = append(results, e.execute(ctx, req.Tools, call))
		}
		messages = append(messages, anthropic.Message{Role: "user", Blocks: results})
	}

	if req.Schema != nil && out.Structured == nil {
		log.Warn("agent: no valid submission",
			zap.Int("turns", out.Turns),
			zap.Int("rejected", out.Rejected),
		)
	}
	out.Text = strings.Join(text, "\n")
	return out, nil
}

func (e *Engine) toolDefinitions(req Request) []anthropic.Tool {
	var tools []anthropic.Tool
	if req.Tools != nil {
		tools = req.Tools.Definitions()
	}
	if req.Schema != nil {
		tools = append(tools, req.Schema.submitTool())
	}
	return tools
}

func (e *Engine) createMessage(ctx context.Context, mr anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}
	resp, err := e.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	}
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, reg *Registry, call anthropic.ContentBlock) anthropic.ContentBlock {
	if reg == nil {
		return anthropic.ToolResultBlock(call.ID, "unknown tool: "+call.Name, true)
	}
	start := time.Now()
	res := reg.Execute(ctx, call)
	zap.L().Debug("agent: tool call",
		zap.String("tool", call.Name),
		zap.Bool("error", res.IsError),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res
}

// recordTurn prices one model call, appends it to the ledger and adds it to
// the running usage.
func (e *Engine) recordTurn(ctx context.Context, stage string, turn int, u anthropic.TokenUsage, total *model.TokenUsage) {
	usd := e.calc.Claude(e.cfg.Model,
		int(u.InputTokens), int(u.OutputTokens),
		int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens),
	)
	total.Add(model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                usd,
	})
	u.LogCost(e.cfg.Model, stage, usd)

	monitoring.StageTokens.WithLabelValues(stage, "input").Add(float64(u.InputTokens))
	monitoring.StageTokens.WithLabelValues(stage, "output").Add(float64(u.OutputTokens))

	if e.ledger == nil {
		return
	}
	if _, err := e.ledger.RecordCost(ctx, budget.Kind(budget.KindLLM, stage), usd,
		float64(u.InputTokens+u.OutputTokens),
		map[string]any{"model": e.cfg.Model, "turn": turn},
	); err != nil {
		zap.L().Warn("agent: record cost failed", zap.String("stage", stage), zap.Error(err))
	}
}

func systemBlocks(req Request) []anthropic.SystemBlock {
	switch {
	case req.Preamble != "":
		return anthropic.BuildCachedSystemBlocks(req.Preamble, req.Instructions)
	case req.Instructions != "":
		return []anthropic.SystemBlock{{Text: req.Instructions}}
	default:
		return nil
	}
}

// promptSize approximates the characters sent in the next call.
func promptSize(req Request, messages []anthropic.Message) int {
	n := len(req.Preamble) + len(req.Instructions)
	for _, m := range messages {
		n += len(m.Content)
		for _, b := range m.Blocks {
			n += len(b.Text) + len(b.Input)
		}
	}
	return n
}
