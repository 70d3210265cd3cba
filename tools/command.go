package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/rs/zerolog"
)

// ExecuteCommandTool implements the tool for running OS commands. Commands run
// without a shell, split on whitespace.
type ExecuteCommandTool struct {
	allowedCommands []string
	matchers        []commandMatcher
}

func NewExecuteCommandTool(allowed []string, logger zerolog.Logger) *ExecuteCommandTool {
	return &ExecuteCommandTool{
		allowedCommands: allowed,
		matchers:        compileAllowList(allowed, logger),
	}
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a command. No commands are currently allowed."
	}

	var b strings.Builder
	b.WriteString("Executes a command. Allowed command patterns (regular expressions matching the whole command):\n")
	for _, cmd := range t.allowedCommands {
		fmt.Fprintf(&b, "- %s\n", cmd)
	}
	return b.String()
}

func (t *ExecuteCommandTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"command": stringProperty("The command line to run."),
	}, "command")
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, ok := args["command"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'command' argument")
	}
	if !isCommandAllowed(command, t.matchers) {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	parts := strings.Fields(command)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "command execution failed. Output:\n%s", string(output))
	}

	return fmt.Sprintf("Command executed successfully. Output:\n%s", string(output)), nil
}
