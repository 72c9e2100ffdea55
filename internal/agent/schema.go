package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/compass-cli/pkg/anthropic"
)

// SubmitToolName is the tool through which the model returns its result.
const SubmitToolName = "submit_result"

const submitDescription = "Submit the final structured result. Call this exactly once when research is complete. " +
	"The input must match the schema; an invalid submission is returned with the errors to fix."

// FieldError is a single schema violation in a submitted result.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Schema is a stage's target output schema.
type Schema struct {
	compiled   *gojsonschema.Schema
	definition map[string]any
}

// NewSchema compiles a JSON schema document.
func NewSchema(source string) (*Schema, error) {
	var def map[string]any
	if err := json.Unmarshal([]byte(source), &def); err != nil {
		return nil, eris.Wrap(err, "agent: decode schema")
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		return nil, eris.Wrap(err, "agent: compile schema")
	}
	return &Schema{compiled: compiled, definition: def}, nil
}

// MustSchema is NewSchema for package-level schema literals.
func MustSchema(source string) *Schema {
	s, err := NewSchema(source)
	if err != nil {
		panic(err)
	}
	return s
}

// Definition returns the decoded schema advertised to the model.
func (s *Schema) Definition() map[string]any {
	return s.definition
}

// Validate checks doc against the schema. A nil slice means doc is valid.
func (s *Schema) Validate(doc []byte) []FieldError {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return []FieldError{{Field: "(root)", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, FieldError{Field: desc.Field(), Message: desc.Description()})
	}
	return errs
}

// submitTool advertises the schema as the submit_result tool.
func (s *Schema) submitTool() anthropic.Tool {
	return anthropic.Tool{
		Name:        SubmitToolName,
		Description: submitDescription,
		InputSchema: s.definition,
	}
}

func formatFieldErrors(errs []FieldError) string {
	lines := make([]string, 0, len(errs)+1)
	lines = append(lines, "submission rejected; fix these fields and call submit_result again:")
	for _, e := range errs {
		lines = append(lines, "- "+e.String())
	}
	return strings.Join(lines, "\n")
}
