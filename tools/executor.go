package tools

import (
	"context"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Mode decides whether tool requests need operator confirmation.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// Confirmer asks the operator whether a tool request may run. The request's
// justification is what the operator decides on.
type Confirmer interface {
	Confirm(ctx context.Context, req pipeline.Request) (bool, error)
}

// Executor runs tool requests against the active tools of a run.
type Executor struct {
	tools     map[string]Tool
	mode      Mode
	confirmer Confirmer
	logger    zerolog.Logger
}

// NewExecutor returns an executor for the given tools. In ModePrompt every
// request goes through confirmer first.
func NewExecutor(active []Tool, mode Mode, confirmer Confirmer, logger zerolog.Logger) *Executor {
	byName := make(map[string]Tool, len(active))
	for _, t := range active {
		byName[t.Name()] = t
	}
	return &Executor{
		tools:     byName,
		mode:      mode,
		confirmer: confirmer,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Execute checks req against the tool's schema, asks for confirmation when
// required and runs the tool.
func (e *Executor) Execute(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	tool, ok := e.tools[req.ToolName]
	if !ok {
		return pipeline.Result{}, errors.New("tool '%s' is not available", req.ToolName)
	}

	if err := validateArgs(tool, req.Parameters); err != nil {
		return pipeline.Result{}, err
	}

	if e.mode == ModePrompt {
		if e.confirmer == nil {
			return pipeline.Result{}, errors.New("tool '%s' needs confirmation but no confirmer is configured", req.ToolName)
		}
		approved, err := e.confirmer.Confirm(ctx, req)
		if err != nil {
			return pipeline.Result{}, errors.Wrapf(err, "confirmation of tool '%s' failed", req.ToolName)
		}
		if !approved {
			e.logger.Info().Str("tool", req.ToolName).Msg("Tool request declined by operator")
			return pipeline.Result{
				RequestID: req.ID,
				ToolName:  req.ToolName,
				Status:    pipeline.StatusDeclined,
				Data:      "The operator declined this tool request.",
			}, nil
		}
	}

	e.logger.Info().
		Str("tool", req.ToolName).
		Str("justification", req.Justification).
		Msg("Executing tool")

	output, err := tool.Execute(ctx, req.Parameters)
	if err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{
		RequestID: req.ID,
		ToolName:  req.ToolName,
		Status:    pipeline.StatusSuccess,
		Data:      output,
	}, nil
}

func validateArgs(tool Tool, args map[string]any) error {
	schema := tool.Schema()
	if len(schema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return errors.Wrapf(err, "could not validate parameters of tool '%s'", tool.Name())
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return errors.New("invalid parameters for tool '%s': %s", tool.Name(), strings.Join(problems, "; "))
	}
	return nil
}
