package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/persona"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
)

// command is an operator command. args is the text after the command name.
type command struct {
	usage   string
	summary string
	run     func(a *Agent, args string)
}

func commandTable() map[string]command {
	return map[string]command{
		"help": {
			summary: "Show this help message",
			run:     (*Agent).cmdHelp,
		},
		"quit": {
			summary: "End the session",
			run:     (*Agent).cmdQuit,
		},
		"exit": {
			summary: "End the session",
			run:     (*Agent).cmdQuit,
		},
		"clear": {
			summary: "Clear the conversation history",
			run:     (*Agent).cmdClear,
		},
		"system": {
			usage:   "<text>",
			summary: "Add a system message to the conversation",
			run:     (*Agent).cmdSystem,
		},
		"debug": {
			summary: "Toggle debug mode",
			run:     (*Agent).cmdDebug,
		},
		"persona": {
			usage:   "[<id>]",
			summary: "Show the active persona or switch to another one",
			run:     (*Agent).cmdPersona,
		},
	}
}

// runCommand handles a line that started with the command prefix. Commands
// never trigger a model call.
func (a *Agent) runCommand(line string) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	name = strings.ToLower(name)

	cmd, ok := a.commands[name]
	if !ok {
		a.logger.Debug().Str("command", name).Msg("Unknown command")
		a.ui.Error(errors.CategoryCommand, fmt.Sprintf("Unknown command: %s%s. Type %shelp for available commands.",
			a.opts.CommandPrefix, name, a.opts.CommandPrefix))
		return
	}

	a.logger.Debug().Str("command", name).Msg("Running command")
	cmd.run(a, strings.TrimSpace(args))
}

func (a *Agent) cmdHelp(string) {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		cmd := a.commands[name]
		usage := a.opts.CommandPrefix + name
		if cmd.usage != "" {
			usage += " " + cmd.usage
		}
		fmt.Fprintf(&b, "  %-20s %s\n", usage, cmd.summary)
	}
	a.ui.Info(strings.TrimRight(b.String(), "\n"))
}

func (a *Agent) cmdQuit(string) {
	a.shutdown()
}

func (a *Agent) cmdClear(string) {
	a.conv.History.Clear(a.opts.PreserveSystem)
	if a.opts.PreserveSystem {
		a.ui.Info("Conversation history cleared (system messages kept).")
		return
	}
	a.ui.Info("Conversation history cleared.")
}

func (a *Agent) cmdSystem(args string) {
	if args == "" {
		a.ui.Error(errors.CategoryCommand, fmt.Sprintf("Usage: %ssystem <text>", a.opts.CommandPrefix))
		return
	}
	if _, err := a.conv.History.Append(session.RoleSystem, args, nil); err != nil {
		a.ui.Error(errors.CategoryInternal, errors.MessageOf(err))
		return
	}
	a.conv.History.Prune(a.opts.PreserveSystem)
	a.ui.Info("System message added.")
}

func (a *Agent) cmdDebug(string) {
	a.debug = !a.debug
	if a.opts.OnDebug != nil {
		a.opts.OnDebug(a.debug)
	}
	if !a.debug {
		a.ui.Info("Debug mode disabled.")
		return
	}

	counts := a.conv.History.Counts()
	a.ui.Info(fmt.Sprintf("Debug mode enabled. History: %d/%d entries (system %d, user %d, assistant %d, tool_result %d). %s.",
		a.conv.History.Len(), a.conv.History.MaxLength(),
		counts[session.RoleSystem], counts[session.RoleUser], counts[session.RoleAssistant], counts[session.RoleToolResult],
		a.selector.Current()))
}

func (a *Agent) cmdPersona(args string) {
	if args == "" {
		msg := a.selector.Current()
		if ids, err := a.selector.Available(); err == nil && len(ids) > 0 {
			msg += "\nAvailable personas: " + strings.Join(ids, ", ")
		}
		a.ui.Info(msg)
		return
	}

	name, err := a.selector.Switch(args)
	if err != nil {
		var invalid *persona.InvalidPersonaError
		if errors.As(err, &invalid) {
			a.ui.Error(errors.CategoryPersona, invalid.Error())
			return
		}
		a.ui.Error(errors.CategoryOf(err), errors.MessageOf(err))
		return
	}
	a.ui.Info(fmt.Sprintf("Switched to persona: %s (%s)", name, a.selector.ActiveID()))
}
