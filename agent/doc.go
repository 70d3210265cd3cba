// Package agent provides the conversation orchestrator of keystone.
//
// The orchestrator is a single-goroutine loop over one Conversation: it reads
// the history window, calls the model, records and displays what the model
// said, routes tool requests through the pipeline and feeds their results back
// to the model without waiting for the operator. When no model turn is
// pending it reads the next operator line from the UI.
//
// # Turns
//
// A model call happens only when a turn is pending:
//
//   - at startup, when the history is not empty
//   - after the operator enters a chat message
//   - after tool results were appended
//
// Consecutive tool round-trips are capped by Options.MaxChainedToolCalls.
// When the cap is reached the orchestrator waits for the operator.
//
// # Commands
//
// Lines starting with the command prefix (default "/") are commands and never
// reach the model:
//
//	/help              list commands
//	/quit, /exit       end the session
//	/clear             clear the history
//	/system <text>     add a system message
//	/debug             toggle debug mode
//	/persona [<id>]    show or switch the active persona
//
// # Failures
//
// Model errors and panics become a synthetic assistant message. Tool requests
// that fail validation are shown to the operator and dropped. Tool execution
// failures are recorded as error results so the model sees them. An
// interrupted read is reported and the loop continues.
//
// # Usage
//
//	conv := &agent.Conversation{History: store, Persona: &persona.State{}}
//	a := agent.New(conv, agent.Deps{
//	    Client:   client,
//	    Pipeline: pipeline.New(executor, logger),
//	    Selector: persona.NewSelector(conv.Persona, provider, logger),
//	    Context:  provider,
//	    UI:       console,
//	}, agent.Options{MaxChainedToolCalls: 10, PreserveSystem: true})
//	a.OnShutdown(registry.Close)
//	err := a.Run(ctx, "")
//
// The terminal subpackage implements UI for an interactive console.
package agent
