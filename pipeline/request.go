package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Status is the outcome of a tool invocation.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusDeclined Status = "declined_by_user"
)

// Request is a tool invocation requested by the model.
//
// Justification is the confirmation artifact shown to whoever grants
// permission: the intent, the exact operation, the expected outcome and the
// risk.
type Request struct {
	ID            string         `json:"request_id"`
	ToolName      string         `json:"tool_name"`
	Parameters    map[string]any `json:"parameters"`
	Justification string         `json:"justification"`
}

// Result is the outcome reported by the execution collaborator.
type Result struct {
	RequestID string `json:"request_id"`
	ToolName  string `json:"tool_name"`
	Status    Status `json:"status"`
	Data      any    `json:"data"`
}

// requestSchema describes the structure every raw tool request must have.
const requestSchema = `{
  "type": "object",
  "required": ["tool_name", "parameters"],
  "properties": {
    "request_id":    {"type": "string"},
    "tool_name":     {"type": "string", "minLength": 1},
    "parameters":    {"type": "object"},
    "justification": {"type": "string"}
  }
}`

var compiledRequestSchema = mustCompile(requestSchema)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("pipeline: invalid request schema: %v", err))
	}
	return s
}

// DecodeRequest checks the structure of a raw, JSON-shaped request and turns
// it into a Request. It fails when tool_name is missing or not a string, or
// when parameters is missing or not an object.
func DecodeRequest(raw map[string]any) (Request, error) {
	if raw == nil {
		return Request{}, validationError("tool request is empty")
	}

	result, err := compiledRequestSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return Request{}, errors.Categorize(errors.CategoryToolValidation, err, "tool request could not be checked")
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Request{}, validationError("malformed tool request: %s", strings.Join(problems, "; "))
	}

	// The schema passed, so a JSON round trip yields the typed request even
	// when the raw values use named Go types.
	data, err := json.Marshal(raw)
	if err != nil {
		return Request{}, errors.Categorize(errors.CategoryToolValidation, err, "tool request is not JSON encodable")
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, errors.Categorize(errors.CategoryToolValidation, err, "tool request could not be decoded")
	}
	return req, nil
}

func validationError(format string, a ...any) error {
	return errors.Categorize(errors.CategoryToolValidation, nil, format, a...)
}
