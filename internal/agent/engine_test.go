package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/internal/store"
	"github.com/sells-group/compass-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/compass-cli/pkg/anthropic/mocks"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["summary", "confidence"]
}`

func newTestLedger(t *testing.T, capUSD float64, strict bool) (*budget.Ledger, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	calc := cost.NewCalculator(cost.DefaultRates())
	return budget.New(st, calc, budget.Config{CapUSD: capUSD, Strict: strict, Model: DefaultModel}), st
}

func newTestEngine(t *testing.T, client anthropic.Client, ledger *budget.Ledger) *Engine {
	t.Helper()
	return NewEngine(client, ledger, cost.NewCalculator(cost.DefaultRates()), Config{MaxTurns: 3})
}

func toolUse(id, name, input string) anthropic.ContentBlock {
	return anthropic.ContentBlock{Type: anthropic.BlockToolUse, ID: id, Name: name, Input: json.RawMessage(input)}
}

func response(stop string, blocks ...anthropic.ContentBlock) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    blocks,
		StopReason: stop,
		Usage:      anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

func echoRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "echo",
		Params: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
		Exec: func(_ context.Context, args map[string]any) (any, error) {
			return "echo: " + args["text"].(string), nil
		},
	}))
	return reg
}

func TestEngine_ToolLoopThenSubmit(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	ledger, st := newTestLedger(t, 10, false)
	eng := newTestEngine(t, client, ledger)

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return len(r.Messages) == 1
	})).Return(response("tool_use",
		anthropic.TextBlock("Looking it up."),
		toolUse("tu_1", "echo", `{"text":"acme"}`),
	), nil).Once()

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		if len(r.Messages) != 3 {
			return false
		}
		res := r.Messages[2].Blocks[0]
		return res.Type == anthropic.BlockToolResult && res.ToolUseID == "tu_1" && res.Text == "echo: acme" && !res.IsError
	})).Return(response("tool_use",
		toolUse("tu_2", SubmitToolName, `{"summary":"Acme makes anvils","confidence":0.9}`),
	), nil).Once()

	ctx := budget.WithRunID(context.Background(), "run-1")
	out, err := eng.Run(ctx, Request{
		Stage:    "news",
		Preamble: "You are a research analyst.",
		Prompt:   "Research Acme.",
		Tools:    echoRegistry(t),
		Schema:   MustSchema(testSchema),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"summary":"Acme makes anvils","confidence":0.9}`, string(out.Structured))
	assert.Equal(t, "Looking it up.", out.Text)
	assert.Equal(t, 2, out.Turns)
	assert.Equal(t, 2, out.ToolCalls)
	assert.Equal(t, 2000, out.Usage.InputTokens)
	assert.Equal(t, 400, out.Usage.OutputTokens)
	assert.Greater(t, out.Usage.Cost, 0.0)

	spent, err := st.SumLedger(ctx, "run-1")
	require.NoError(t, err)
	assert.InDelta(t, out.Usage.Cost, spent, 1e-9)

	entries, err := st.ListLedger(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "llm:news", entries[0].Operation)
}

func TestEngine_InvalidSubmissionReturnedToModel(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := newTestEngine(t, client, nil)

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return len(r.Messages) == 1
	})).Return(response("tool_use",
		toolUse("tu_1", SubmitToolName, `{"summary":"x","confidence":4}`),
	), nil).Once()

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		if len(r.Messages) != 3 {
			return false
		}
		res := r.Messages[2].Blocks[0]
		return res.IsError && res.ToolUseID == "tu_1"
	})).Return(response("tool_use",
		toolUse("tu_2", SubmitToolName, `{"summary":"x","confidence":0.7}`),
	), nil).Once()

	out, err := eng.Run(context.Background(), Request{Stage: "patents", Prompt: "p", Schema: MustSchema(testSchema)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Rejected)
	assert.JSONEq(t, `{"summary":"x","confidence":0.7}`, string(out.Structured))
}

func TestEngine_TextOnlyEndsLoop(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := newTestEngine(t, client, nil)

	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(response("end_turn", anthropic.TextBlock("Confidence: 0.45\n- founded 2010")), nil).Once()

	out, err := eng.Run(context.Background(), Request{Stage: "founders", Prompt: "p"})
	require.NoError(t, err)
	assert.Nil(t, out.Structured)
	assert.Equal(t, "Confidence: 0.45\n- founded 2010", out.Text)
	assert.Equal(t, "end_turn", out.StopReason)
}

func TestEngine_LastTurnForcesSubmit(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := NewEngine(client, nil, cost.NewCalculator(cost.DefaultRates()), Config{MaxTurns: 2})

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.ToolChoice == ""
	})).Return(response("tool_use", toolUse("tu_1", "echo", `{"text":"a"}`)), nil).Once()

	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.ToolChoice == SubmitToolName
	})).Return(response("tool_use",
		toolUse("tu_2", SubmitToolName, `{"summary":"done","confidence":0.6}`),
	), nil).Once()

	out, err := eng.Run(context.Background(), Request{
		Stage:  "deepdive",
		Prompt: "p",
		Tools:  echoRegistry(t),
		Schema: MustSchema(testSchema),
	})
	require.NoError(t, err)
	assert.NotNil(t, out.Structured)
	assert.Equal(t, 2, out.Turns)
}

func TestEngine_MaxTurnsWithoutSubmission(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := NewEngine(client, nil, cost.NewCalculator(cost.DefaultRates()), Config{MaxTurns: 2})

	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(response("tool_use", toolUse("tu", "echo", `{"text":"a"}`)), nil).Times(2)

	out, err := eng.Run(context.Background(), Request{Stage: "news", Prompt: "p", Tools: echoRegistry(t)})
	require.NoError(t, err)
	assert.Nil(t, out.Structured)
	assert.Equal(t, 2, out.Turns)
	assert.Equal(t, 2, out.ToolCalls)
}

func TestEngine_TransientAPIError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := newTestEngine(t, client, nil)

	apiErr := &sdk.Error{
		StatusCode: 529,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: 529},
	}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, apiErr).Once()

	_, err := eng.Run(context.Background(), Request{Stage: "news", Prompt: "p"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "agent: news turn 1")
}

func TestEngine_PermanentError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := newTestEngine(t, client, nil)

	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid request")).Once()

	_, err := eng.Run(context.Background(), Request{Stage: "news", Prompt: "p"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestEngine_StrictBudgetRefusesTurn(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	ledger, _ := newTestLedger(t, 0, true)
	eng := newTestEngine(t, client, ledger)

	_, err := eng.Run(context.Background(), Request{Stage: "synthesis", Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestEngine_AdvisoryBudgetAllowsTurn(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	ledger, _ := newTestLedger(t, 0, false)
	eng := newTestEngine(t, client, ledger)

	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(response("end_turn", anthropic.TextBlock("ok")), nil).Once()

	out, err := eng.Run(context.Background(), Request{Stage: "synthesis", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
}

func TestEngine_RequestShape(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	eng := newTestEngine(t, client, nil)

	var got anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(anthropic.MessageRequest) }).
		Return(response("end_turn"), nil).Once()

	_, err := eng.Run(context.Background(), Request{
		Stage:        "news",
		Preamble:     "preamble",
		Instructions: "instructions",
		Prompt:       "p",
		Tools:        echoRegistry(t),
		Schema:       MustSchema(testSchema),
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, int64(DefaultMaxTokens), got.MaxTokens)
	require.Len(t, got.System, 2)
	assert.NotNil(t, got.System[0].CacheControl)
	require.Len(t, got.Tools, 2)
	assert.Equal(t, "echo", got.Tools[0].Name)
	assert.Equal(t, SubmitToolName, got.Tools[1].Name)
}
