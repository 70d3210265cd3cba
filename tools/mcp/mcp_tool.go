// Package mcp exposes the tools of Model Context Protocol servers, each run as
// a subprocess, through the keystone tool interface.
package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  map[string]*MCPTool
	logger zerolog.Logger
}

// NewMCPClient starts the MCP server subprocess, connects to it and discovers
// the tools it provides.
func NewMCPClient(ctx context.Context, name, command string, args []string, logger zerolog.Logger) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "keystone", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	c := &MCPClient{
		Name:   name,
		cmd:    cmd,
		conn:   conn,
		tools:  make(map[string]*MCPTool),
		logger: logger.With().Str("mcp_server", name).Logger(),
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}

		for _, t := range list.Tools {
			c.tools[t.Name] = &MCPTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schemaMap(t.InputSchema),
				client:      c,
			}
		}

		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	c.logger.Info().Int("tools", len(c.tools)).Msg("MCP client initialized")
	return c, nil
}

// GetTool returns a tool of this server by its short name.
func (c *MCPClient) GetTool(toolName string) (*MCPTool, bool) {
	tool, ok := c.tools[toolName]
	return tool, ok
}

// Tools returns every tool of this server sorted by name.
func (c *MCPClient) Tools() []*MCPTool {
	out := make([]*MCPTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].toolName < out[j].toolName })
	return out
}

// Stop closes the session and terminates the subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info().Msg("Terminating MCP server")
		err := c.cmd.Process.Kill()
		c.cmd = nil
		return err
	}
	return nil
}

// MCPTool is a tool served by an MCP server.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]any
	client      *MCPClient
}

// Name returns the tool's short name. Vendors reject ':' in function names, so
// the server name is not part of it.
func (t *MCPTool) Name() string {
	return t.toolName
}

func (t *MCPTool) Description() string {
	return t.description
}

// Schema returns the input schema advertised by the server.
func (t *MCPTool) Schema() map[string]any {
	return t.schema
}

// Execute calls the tool on the server and joins its text content.
func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.client.conn == nil {
		return "", errors.New("MCP server '%s' is not running", t.serverName)
	}
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}

	var b strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.Name(), b.String())
	}
	return b.String(), nil
}

// schemaMap converts the SDK schema type into a plain JSON object.
func schemaMap(schema any) map[string]any {
	out := map[string]any{"type": "object"}
	if schema == nil {
		return out
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return out
	}
	return m
}
