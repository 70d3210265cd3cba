// Package terminal implements the interactive operator console of keystone.
//
// A Terminal reads lines from an io.Reader on one background goroutine and
// hands them to the orchestrator through ReadLine. Interrupt makes the pending
// read return agent.ErrInterrupted; the CLI calls it on SIGINT so an
// interrupted line does not end the session.
//
// Output is styled with lipgloss. The renderer is bound to the output writer,
// so piped or redirected output stays plain text. Errors are printed as
// "<category>: <message>".
//
// # Verbosity
//
// Tool traffic is displayed according to the verbosity:
//
//   - none: nothing
//   - info: tool names and result status
//   - all: arguments, justification and full output
//
// # Confirmation
//
// Terminal also implements tools.Confirmer. In prompt mode every tool request
// is shown with its arguments and justification and the operator answers y or
// n.
//
// # Usage
//
//	console := terminal.New(os.Stdin, os.Stdout, terminal.VerbosityInfo)
//	executor := tools.NewExecutor(active, tools.ModePrompt, console, logger)
//	a := agent.New(conv, agent.Deps{UI: console, ...}, opts)
package terminal
