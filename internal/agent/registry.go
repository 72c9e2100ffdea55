// Package agent runs the reasoning engine: a bounded tool-use loop over the
// Anthropic Messages API with research tools and a validated result tool.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/compass-cli/pkg/anthropic"
)

// DefaultOutputLimit caps the characters of a tool result sent back to the
// model.
const DefaultOutputLimit = 20_000

// ToolFunc executes a tool call with schema-validated arguments.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is a client-side tool the model may call.
type Tool struct {
	Name        string
	Description string
	// Params is the JSON schema of the arguments object.
	Params map[string]any
	Exec   ToolFunc
	// Limit caps the result length; 0 uses DefaultOutputLimit.
	Limit int
}

type registeredTool struct {
	Tool
	schema *jsonschema.Schema
}

// Registry holds the tools offered to the model for one engine call.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]registeredTool{}}
}

// Register compiles the tool's argument schema and adds it. A tool with the
// same name is replaced.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return eris.New("agent: tool name is required")
	}
	if t.Exec == nil {
		return eris.Errorf("agent: tool %s missing executor", t.Name)
	}
	if t.Limit <= 0 {
		t.Limit = DefaultOutputLimit
	}
	s, err := compileSchema(t.Params)
	if err != nil {
		return eris.Wrapf(err, "agent: tool %s schema", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = registeredTool{Tool: t, schema: s}
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns the tools in name order for a model request.
func (r *Registry) Definitions() []anthropic.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]anthropic.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, anthropic.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: paramsOrEmpty(t.Params),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one tool_use block and returns the tool_result block that
// answers it. Unknown tools, malformed arguments and executor errors all come
// back as error results for the model to act on.
func (r *Registry) Execute(ctx context.Context, call anthropic.ContentBlock) anthropic.ContentBlock {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return anthropic.ToolResultBlock(call.ID, fmt.Sprintf("unknown tool: %s", call.Name), true)
	}

	args, err := decodeArgs(call.Input)
	if err != nil {
		return t.result(call.ID, fmt.Sprintf("invalid tool arguments JSON: %v", err), true)
	}
	if err := t.schema.Validate(args); err != nil {
		return t.result(call.ID, fmt.Sprintf("tool args schema validation failed: %v", err), true)
	}

	v, err := t.Exec(ctx, args)
	if err != nil {
		return t.result(call.ID, err.Error(), true)
	}
	return t.result(call.ID, valueToString(v), false)
}

func (t registeredTool) result(id, content string, isErr bool) anthropic.ContentBlock {
	return anthropic.ToolResultBlock(id, truncateChars(content, t.Limit), isErr)
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	var args map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// truncateChars keeps the head and tail of s around a marker naming how much
// was dropped.
func truncateChars(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	removed := len(s) - max
	head := max / 2
	tail := max - head
	marker := fmt.Sprintf("\n\n[truncated: %d characters removed from the middle; narrow the query to see them]\n\n", removed)
	return s[:head] + marker + s[len(s)-tail:]
}

func paramsOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return params
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(paramsOrEmpty(params))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func valueToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
