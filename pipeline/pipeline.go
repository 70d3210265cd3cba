// Package pipeline validates tool requests coming from the model, forwards
// them to the execution collaborator and turns every outcome, including
// failures, into something the conversation history can hold.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/rs/zerolog"
)

// Executor performs tool invocations. Permission checks and confirmation are
// the executor's business; the pipeline only guarantees that a justification
// is present.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Unknown is used for a missing tool name or request id in formatted entries.
const Unknown = "unknown"

// Pipeline is the tool request pipeline.
type Pipeline struct {
	executor Executor
	logger   zerolog.Logger
}

// New creates a pipeline around executor.
func New(executor Executor, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		executor: executor,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Validate checks a request before any dispatch attempt.
func (p *Pipeline) Validate(req Request) error {
	if strings.TrimSpace(req.ToolName) == "" {
		return validationError("tool_name must be a non-empty string")
	}
	if req.Parameters == nil {
		return validationError("parameters for tool %q must be a mapping", req.ToolName)
	}
	if strings.TrimSpace(req.Justification) == "" {
		return validationError("tool %q was requested without a justification (intent, operation, expected outcome, risk)", req.ToolName)
	}
	return nil
}

// Execute validates req and runs it through the executor. The returned Result
// is always appendable to the history: on failure it carries status error and
// the cause under data.error_message, and the error is non-nil.
func (p *Pipeline) Execute(ctx context.Context, req Request) (Result, error) {
	if err := p.Validate(req); err != nil {
		p.logger.Warn().Str("tool", req.ToolName).Err(err).Msg("Tool request rejected")
		return failedResult(req, err), err
	}
	if p.executor == nil {
		err := errors.Categorize(errors.CategoryToolExecution, nil, "no tool executor is configured")
		return failedResult(req, err), err
	}

	p.logger.Debug().
		Str("tool", req.ToolName).
		Str("request_id", req.ID).
		Msg("Dispatching tool request")

	res, err := p.dispatch(ctx, req)
	if err != nil {
		p.logger.Error().Str("tool", req.ToolName).Err(err).Msg("Tool execution failed")
		wrapped := errors.Categorize(errors.CategoryToolExecution, err, "tool %q failed", req.ToolName)
		return failedResult(req, err), wrapped
	}

	if res.RequestID == "" {
		res.RequestID = req.ID
	}
	if res.ToolName == "" {
		res.ToolName = req.ToolName
	}
	if res.Status == "" {
		res.Status = StatusSuccess
	}

	p.logger.Debug().
		Str("tool", res.ToolName).
		Str("status", string(res.Status)).
		Msg("Tool request completed")
	return res, nil
}

// ExecuteBatch runs the requests one after another and returns one Result per
// request, in input order. A failing request does not stop the rest.
func (p *Pipeline) ExecuteBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		res, err := p.Execute(ctx, req)
		if err != nil {
			p.logger.Debug().Str("tool", req.ToolName).Err(err).Msg("Batch item failed, continuing")
		}
		results = append(results, res)
	}
	return results
}

// dispatch calls the executor, converting a panic into an error.
func (p *Pipeline) dispatch(ctx context.Context, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return p.executor.Execute(ctx, req)
}

func failedResult(req Request, cause error) Result {
	return Result{
		RequestID: req.ID,
		ToolName:  req.ToolName,
		Status:    StatusError,
		Data:      map[string]any{"error_message": errors.MessageOf(cause)},
	}
}

// FormatAsEntry renders a result as tool_result content plus the metadata the
// history requires. It never fails: data that cannot be encoded as JSON is
// rendered with %v.
func FormatAsEntry(res Result) (string, *session.Extra) {
	extra := &session.Extra{ToolName: res.ToolName, ToolCallID: res.RequestID}
	if extra.ToolName == "" {
		extra.ToolName = Unknown
	}
	if extra.ToolCallID == "" {
		extra.ToolCallID = Unknown
	}
	return formatData(res.Data), extra
}

func formatData(data any) (out string) {
	defer func() {
		// some Marshaler implementations panic on bad state
		if r := recover(); r != nil {
			out = fmt.Sprintf("%v", data)
		}
	}()

	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}

	// Tool output goes back to the model verbatim, so <, > and & stay as-is.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return fmt.Sprintf("%v", data)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
