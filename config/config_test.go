package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, Dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dir, "config.yaml"), []byte(content), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.History.MaxLength)
	assert.Equal(t, "/", cfg.Orchestrator.CommandPrefix)
	assert.Equal(t, 10, cfg.Orchestrator.MaxChainedToolCalls)
	assert.True(t, cfg.History.PreserveSystem)
}

func TestLoadConfigLayering(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, home, `
llm: anthropic
model: claude-user
history:
  max_length: 40
`)
	writeConfig(t, project, `
model: claude-project
orchestrator:
  mode: auto
  command_prefix: "!"
toolsets:
  - name: default
    tools: [read_file, write_file]
filesystem_access:
  hidden: ["secrets/**"]
`)

	cfg, err := LoadConfig(project)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLMClient, "user value survives")
	assert.Equal(t, "claude-project", cfg.Model, "project overrides user")
	assert.Equal(t, 40, cfg.History.MaxLength)
	assert.Equal(t, "auto", cfg.Orchestrator.Mode)
	assert.Equal(t, "!", cfg.Orchestrator.CommandPrefix)
	assert.Equal(t, "info", cfg.Orchestrator.ToolVerbosity, "untouched default")
	assert.ElementsMatch(t, []string{"secrets/**", ".keystone", ".keystone/**"}, cfg.FilesystemAccess.Hidden)

	ts, err := cfg.GetToolset("")
	require.NoError(t, err)
	assert.Equal(t, []string{"read_file", "write_file"}, ts.Tools)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	writeConfig(t, project, "history: [not, a, mapping")

	_, err := LoadConfig(project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading project config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown llm", func(c *Config) { c.LLMClient = "parrot" }, "unknown llm"},
		{"zero max length", func(c *Config) { c.History.MaxLength = 0 }, "max_length"},
		{"empty prefix", func(c *Config) { c.Orchestrator.CommandPrefix = " " }, "command_prefix"},
		{"negative chain cap", func(c *Config) { c.Orchestrator.MaxChainedToolCalls = -1 }, "max_chained_tool_calls"},
		{"unknown mode", func(c *Config) { c.Orchestrator.Mode = "yolo" }, "orchestrator.mode"},
		{"unknown verbosity", func(c *Config) { c.Orchestrator.ToolVerbosity = "loud" }, "tool_verbosity"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
		{"incomplete mcp server", func(c *Config) { c.AdditionalMCPServers = []MCPServer{{Name: "gopls"}} }, "additional_mcp_servers"},
		{"missing default toolset", func(c *Config) { c.Toolsets = []Toolset{{Name: "other"}} }, "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.Equal(t, errors.CategoryConfig, errors.CategoryOf(err))
		})
	}
}

func TestGetToolset(t *testing.T) {
	cfg := Default()
	cfg.Toolsets = append(cfg.Toolsets, Toolset{Name: "dev", Tools: []string{"execute_command"}})

	ts, err := cfg.GetToolset("dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", ts.Name)

	ts, err = cfg.GetToolset("missing")
	require.NoError(t, err)
	assert.Equal(t, "default", ts.Name, "falls back to default")

	cfg.Toolsets = nil
	_, err = cfg.GetToolset("missing")
	assert.Error(t, err)
}
