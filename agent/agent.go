package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/llm"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/persona"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/rs/zerolog"
)

var (
	// ErrNotInitialized is returned by Run when a collaborator is missing.
	ErrNotInitialized = errors.Sentinel("orchestrator is not initialized")
	// ErrInterrupted is returned by UI.ReadLine when the operator interrupts
	// input. The session continues.
	ErrInterrupted = errors.Sentinel("input interrupted")
)

const (
	DefaultCommandPrefix       = "/"
	DefaultMaxChainedToolCalls = 10

	fallbackResponse = "I wasn't able to produce a response. Please try rephrasing your request."
)

// State is the lifecycle state of the orchestrator.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Conversation is the state owned by one run: the history and the active
// persona. Both are mutated only from the Run goroutine.
type Conversation struct {
	History *session.Store
	Persona *persona.State
}

// UI is the operator console.
type UI interface {
	// ReadLine blocks for the next input line. It returns ErrInterrupted when
	// the operator interrupts, io.EOF when input ends, or ctx's error.
	ReadLine(ctx context.Context, prompt string) (string, error)
	AssistantMessage(text string)
	Info(text string)
	Error(category errors.Category, message string)
	ToolCall(req pipeline.Request)
	ToolResult(res pipeline.Result)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Client   llm.LLMClient
	Pipeline *pipeline.Pipeline
	Selector *persona.Selector
	Context  persona.ContextProvider
	UI       UI
}

// Options tune the orchestrator.
type Options struct {
	// CommandPrefix marks operator commands. Defaults to "/".
	CommandPrefix string
	// MaxChainedToolCalls caps consecutive tool round-trips without operator
	// input. Zero means unlimited.
	MaxChainedToolCalls int
	// PreserveSystem keeps system entries when pruning and clearing.
	PreserveSystem bool
	// Tools are offered to the model on every call.
	Tools []tools.Tool
	// OnDebug is called when the operator toggles debug mode.
	OnDebug func(on bool)
	Logger  zerolog.Logger
}

// Agent is the conversation orchestrator.
type Agent struct {
	conv     *Conversation
	client   llm.LLMClient
	pipeline *pipeline.Pipeline
	selector *persona.Selector
	personas persona.ContextProvider
	ui       UI
	opts     Options
	logger   zerolog.Logger

	state       State
	debug       bool
	pending     bool
	chain       int
	seeded      bool
	stopped     bool
	queuedInput string
	hooks       []func() error
	commands    map[string]command
}

// New wires an orchestrator. Missing collaborators are reported by Run.
func New(conv *Conversation, deps Deps, opts Options) *Agent {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = DefaultCommandPrefix
	}
	if opts.MaxChainedToolCalls < 0 {
		opts.MaxChainedToolCalls = 0
	}
	a := &Agent{
		conv:     conv,
		client:   deps.Client,
		pipeline: deps.Pipeline,
		selector: deps.Selector,
		personas: deps.Context,
		ui:       deps.UI,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
	a.commands = commandTable()
	return a
}

// OnShutdown registers fn to run when the session ends. Hooks run in reverse
// registration order.
func (a *Agent) OnShutdown(fn func() error) {
	a.hooks = append(a.hooks, fn)
}

// State reports whether the loop is running.
func (a *Agent) State() State { return a.state }

// Debug reports whether debug mode is on.
func (a *Agent) Debug() bool { return a.debug }

// Run drives the conversation until the operator quits, input ends or ctx is
// cancelled. initialInput, when not empty, is handled as the first operator
// line.
func (a *Agent) Run(ctx context.Context, initialInput string) error {
	if err := a.checkInitialized(); err != nil {
		return err
	}

	a.state = StateRunning
	a.stopped = false
	a.queuedInput = initialInput
	a.seedInitialPrompt()
	// a queued first line triggers the first model call itself
	a.pending = a.conv.History.Len() > 0 && initialInput == ""
	a.logger.Info().Int("history", a.conv.History.Len()).Msg("Orchestrator started")

	for a.state == StateRunning {
		if err := ctx.Err(); err != nil {
			a.shutdown()
			return err
		}

		if a.pending {
			a.pending = false
			resp := a.callModel(ctx)
			if err := ctx.Err(); err != nil {
				a.shutdown()
				return err
			}
			a.handleResponse(ctx, resp)
			continue
		}
		a.chain = 0

		line, err := a.nextInput(ctx)
		switch {
		case err == nil:
			a.handleInput(line)
		case errors.Is(err, ErrInterrupted):
			a.ui.Error(errors.CategoryInterrupt, fmt.Sprintf("Input interrupted. Type %squit to exit.", a.opts.CommandPrefix))
		case errors.Is(err, io.EOF):
			a.logger.Info().Msg("Input closed")
			a.shutdown()
			return nil
		case ctx.Err() != nil:
			a.shutdown()
			return ctx.Err()
		default:
			a.logger.Error().Err(err).Msg("Reading input failed")
			a.shutdown()
			return errors.Wrapf(err, "failed to read input")
		}
	}
	return nil
}

func (a *Agent) checkInitialized() error {
	var missing []string
	if a.conv == nil || a.conv.History == nil {
		missing = append(missing, "history")
	}
	if a.conv == nil || a.conv.Persona == nil {
		missing = append(missing, "persona state")
	}
	if a.client == nil {
		missing = append(missing, "model client")
	}
	if a.pipeline == nil {
		missing = append(missing, "tool pipeline")
	}
	if a.selector == nil {
		missing = append(missing, "persona selector")
	}
	if a.ui == nil {
		missing = append(missing, "console")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrNotInitialized, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// seedInitialPrompt appends the context's initial prompt as a system entry,
// once per Agent.
func (a *Agent) seedInitialPrompt() {
	if a.seeded || a.personas == nil {
		return
	}
	a.seeded = true

	prompt, err := a.personas.InitialPrompt()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Could not load initial prompt")
		return
	}
	if strings.TrimSpace(prompt) == "" {
		return
	}
	if _, err := a.conv.History.Append(session.RoleSystem, prompt, nil); err != nil {
		a.logger.Error().Err(err).Msg("Could not seed initial prompt")
	}
}

func (a *Agent) nextInput(ctx context.Context) (string, error) {
	if a.queuedInput != "" {
		line := a.queuedInput
		a.queuedInput = ""
		return line, nil
	}
	return a.ui.ReadLine(ctx, "You: ")
}

// handleInput dispatches one operator line.
func (a *Agent) handleInput(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	if strings.HasPrefix(input, a.opts.CommandPrefix) {
		a.runCommand(strings.TrimPrefix(input, a.opts.CommandPrefix))
		return
	}

	if _, err := a.conv.History.Append(session.RoleUser, input, nil); err != nil {
		a.logger.Error().Err(err).Msg("Could not record user input")
		a.ui.Error(errors.CategoryInternal, errors.MessageOf(err))
		return
	}
	a.conv.History.Prune(a.opts.PreserveSystem)
	a.pending = true
}

// callModel sends the current window to the model. Failures and panics become
// a synthetic text response so the session continues.
func (a *Agent) callModel(ctx context.Context) (resp *llm.Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("Model client panicked")
			resp = &llm.Response{Conversation: fmt.Sprintf("%s: unexpected failure: %v", errors.CategoryLLM, r)}
		}
	}()

	req := llm.Request{
		Messages:      a.conv.History.ReadForModel(nil),
		PersonaID:     a.selector.ActiveID(),
		PersonaPrompt: a.selector.Prompt(),
		Tools:         a.opts.Tools,
	}
	a.logger.Debug().
		Int("messages", len(req.Messages)).
		Str("persona", req.PersonaID).
		Msg("Calling model")

	resp, err := a.client.Send(ctx, req)
	if err != nil {
		a.logger.Error().Err(err).Msg("Model call failed")
		return &llm.Response{Conversation: fmt.Sprintf("%s: %s", errors.CategoryLLM, errors.MessageOf(err))}
	}
	return resp
}

// handleResponse records and displays the model's text and runs its tool
// requests.
func (a *Agent) handleResponse(ctx context.Context, resp *llm.Response) {
	if resp == nil || (strings.TrimSpace(resp.Conversation) == "" && len(resp.ToolRequests) == 0 && len(resp.Invalid) == 0) {
		a.logger.Warn().Msg("Model returned an empty response")
		resp = &llm.Response{Conversation: fallbackResponse}
	}

	if text := strings.TrimSpace(resp.Conversation); text != "" {
		if _, err := a.conv.History.Append(session.RoleAssistant, resp.Conversation, nil); err != nil {
			a.logger.Error().Err(err).Msg("Could not record assistant message")
		}
		a.ui.AssistantMessage(resp.Conversation)
	}

	for _, err := range resp.Invalid {
		a.logger.Warn().Err(err).Msg("Dropping malformed tool call")
		a.ui.Error(errors.CategoryOf(err), errors.MessageOf(err))
	}
	if len(resp.ToolRequests) > 0 {
		a.runTools(ctx, resp.ToolRequests)
	}
}

// runTools sends the requests through the pipeline and appends the results.
// Requests that fail validation are shown to the operator and not recorded.
func (a *Agent) runTools(ctx context.Context, reqs []pipeline.Request) {
	var valid []pipeline.Request
	for _, req := range reqs {
		if err := a.pipeline.Validate(req); err != nil {
			a.logger.Warn().Str("tool", req.ToolName).Err(err).Msg("Dropping invalid tool request")
			a.ui.Error(errors.CategoryOf(err), errors.MessageOf(err))
			continue
		}
		a.ui.ToolCall(req)
		valid = append(valid, req)
	}
	if len(valid) == 0 {
		return
	}

	var results []pipeline.Result
	if len(valid) == 1 {
		res, err := a.pipeline.Execute(ctx, valid[0])
		if err != nil {
			a.ui.Error(errors.CategoryOf(err), errors.MessageOf(err))
		}
		results = []pipeline.Result{res}
	} else {
		results = a.pipeline.ExecuteBatch(ctx, valid)
		for _, res := range results {
			if res.Status == pipeline.StatusError {
				a.ui.Error(errors.CategoryToolExecution, fmt.Sprintf("tool %q failed: %s", res.ToolName, errorMessage(res)))
			}
		}
	}

	appended := 0
	for _, res := range results {
		a.ui.ToolResult(res)
		content, extra := pipeline.FormatAsEntry(res)
		if _, err := a.conv.History.Append(session.RoleToolResult, content, extra); err != nil {
			a.logger.Error().Err(err).Str("tool", res.ToolName).Msg("Could not record tool result")
			continue
		}
		appended++
	}
	if appended == 0 {
		return
	}
	a.conv.History.Prune(a.opts.PreserveSystem)

	a.chain++
	if limit := a.opts.MaxChainedToolCalls; limit > 0 && a.chain >= limit {
		a.logger.Warn().Int("limit", limit).Msg("Tool chain limit reached")
		a.ui.Info(fmt.Sprintf("Reached the limit of %d consecutive tool calls. Waiting for your input.", limit))
		return
	}
	a.pending = true
}

func errorMessage(res pipeline.Result) string {
	if m, ok := res.Data.(map[string]any); ok {
		if msg, ok := m["error_message"].(string); ok {
			return msg
		}
	}
	return fmt.Sprintf("%v", res.Data)
}

// shutdown notifies the operator and runs the shutdown hooks once.
func (a *Agent) shutdown() {
	a.state = StateStopped
	if a.stopped {
		return
	}
	a.stopped = true

	a.ui.Info("Shutting down. Goodbye.")
	for i := len(a.hooks) - 1; i >= 0; i-- {
		if err := a.hooks[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Shutdown hook failed")
		}
	}
	a.logger.Info().Msg("Orchestrator stopped")
}
