// Package tools is the execution side of tool requests: it owns the set of
// tools a run may use, checks their parameters and access rules, and asks the
// operator for confirmation when configured to.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/config"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools/mcp"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments accepted by Execute.
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolRegistry holds the built-in tools and the tools of every MCP server
// started for this run.
type ToolRegistry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.MCPClient
	logger     zerolog.Logger
}

// NewToolRegistry registers the built-in tools and starts the MCP servers
// named in cfg. A server that fails to start is logged and skipped.
func NewToolRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *ToolRegistry {
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
		logger:     logger.With().Str("component", "tools").Logger(),
	}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ListFilesTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(NewExecuteCommandTool(cfg.AllowedCommands, r.logger))

	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewMCPClient(ctx, server.Name, server.Command, server.Args, r.logger)
		if err != nil {
			r.logger.Warn().Err(err).Str("server", server.Name).Msg("MCP server unavailable, skipping")
			continue
		}
		r.mcpClients[server.Name] = client
	}

	return r
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// sourcedTool is a tool together with where it came from: "" for built-ins,
// otherwise the MCP server name.
type sourcedTool struct {
	tool   Tool
	source string
}

// GetActiveTools returns the tool instances for a toolset. Entries are either
// a built-in tool name, "<server>:<tool>" for a single MCP tool, or
// "<server>.*" for every tool of an MCP server.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var found []sourcedTool
	for _, toolName := range ts.Tools {
		if server, ok := strings.CutSuffix(toolName, ".*"); ok {
			client, ok := r.mcpClients[server]
			if !ok {
				r.logger.Warn().Str("server", server).Str("toolset", ts.Name).Msg("MCP server not running, tools unavailable")
				continue
			}
			for _, t := range client.Tools() {
				found = append(found, sourcedTool{tool: t, source: server})
			}
			continue
		}

		if server, name, ok := strings.Cut(toolName, ":"); ok {
			client, ok := r.mcpClients[server]
			if !ok {
				r.logger.Warn().Str("server", server).Str("toolset", ts.Name).Msg("MCP server not running, tools unavailable")
				continue
			}
			t, ok := client.GetTool(name)
			if !ok {
				return nil, errors.New("tool '%s' is not provided by MCP server '%s'", name, server)
			}
			found = append(found, sourcedTool{tool: t, source: server})
			continue
		}

		t, ok := r.GetTool(toolName)
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", toolName, ts.Name)
		}
		found = append(found, sourcedTool{tool: t})
	}

	active, err := uniqueTools(found, ts.Name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Name() < active[j].Name() })
	return active, nil
}

// uniqueTools drops repeated entries for the same tool. Tools are called by
// name alone, so two sources offering the same name is an error.
func uniqueTools(found []sourcedTool, toolset string) ([]Tool, error) {
	sources := make(map[string]string, len(found))
	active := make([]Tool, 0, len(found))
	for _, f := range found {
		name := f.tool.Name()
		prev, seen := sources[name]
		if !seen {
			sources[name] = f.source
			active = append(active, f.tool)
			continue
		}
		if prev != f.source {
			return nil, errors.New("tool '%s' in toolset '%s' is provided by both %s and %s", name, toolset, describeSource(prev), describeSource(f.source))
		}
	}
	return active, nil
}

func describeSource(source string) string {
	if source == "" {
		return "the built-in tools"
	}
	return fmt.Sprintf("MCP server '%s'", source)
}

// Close stops every MCP server subprocess.
func (r *ToolRegistry) Close() error {
	var first error
	for name, c := range r.mcpClients {
		if err := c.Stop(); err != nil {
			r.logger.Warn().Err(err).Str("server", name).Msg("Failed to stop MCP server")
			if first == nil {
				first = err
			}
		}
	}
	r.mcpClients = map[string]*mcp.MCPClient{}
	return first
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// commandMatcher is one entry of the allowed_commands list. Patterns are
// regular expressions matched against the whole command line; an entry that
// does not compile is compared literally.
type commandMatcher struct {
	literal string
	re      *regexp.Regexp
}

func compileAllowList(patterns []string, logger zerolog.Logger) []commandMatcher {
	matchers := make([]commandMatcher, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			logger.Warn().Err(err).Str("pattern", pattern).Msg("Invalid regex in allowed_commands, comparing literally")
			matchers = append(matchers, commandMatcher{literal: pattern})
			continue
		}
		matchers = append(matchers, commandMatcher{literal: pattern, re: re})
	}
	return matchers
}

// isCommandAllowed checks if a command is in the allowlist.
func isCommandAllowed(command string, allowed []commandMatcher) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, m := range allowed {
		if m.re == nil {
			if command == m.literal {
				return true
			}
			continue
		}
		if m.re.MatchString(command) {
			return true
		}
	}
	return false
}
