package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/config"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches into a fresh temp dir for the duration of the test.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, "secret.txt")
	cfg.FilesystemAccess.ReadOnly = []string{"docs/**"}
	cfg.AllowedCommands = []string{"echo .*", "go (test|vet) .*", "bad(regex"}
	return cfg
}

func TestGetActiveTools(t *testing.T) {
	r := NewToolRegistry(context.Background(), testConfig(), zerolog.Nop())

	active, err := r.GetActiveTools(&config.Toolset{Name: "dev", Tools: []string{"write_file", "read_file", "missing.*", "missing:tool"}})
	require.NoError(t, err)
	names := make([]string, len(active))
	for i, tool := range active {
		names[i] = tool.Name()
	}
	assert.Equal(t, []string{"read_file", "write_file"}, names)

	_, err = r.GetActiveTools(&config.Toolset{Name: "dev", Tools: []string{"teleport"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")

	assert.NoError(t, r.Close())
}

func TestGetActiveToolsRepeatedEntry(t *testing.T) {
	r := NewToolRegistry(context.Background(), testConfig(), zerolog.Nop())
	defer r.Close()

	active, err := r.GetActiveTools(&config.Toolset{Name: "dev", Tools: []string{"read_file", "read_file"}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "read_file", active[0].Name())
}

func TestUniqueTools(t *testing.T) {
	builtin := &stubTool{}
	served := &stubTool{}

	active, err := uniqueTools([]sourcedTool{{tool: builtin}, {tool: builtin}}, "dev")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = uniqueTools([]sourcedTool{{tool: builtin}, {tool: served, source: "files"}}, "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool 'stub' in toolset 'dev' is provided by both the built-in tools and MCP server 'files'")

	_, err = uniqueTools([]sourcedTool{{tool: served, source: "files"}, {tool: served, source: "git"}}, "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MCP server 'files' and MCP server 'git'")
}

func TestFilesystemTools(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("docs", 0o755))
	require.NoError(t, os.WriteFile("secret.txt", []byte("hunter2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join("docs", "guide.md"), []byte("guide"), 0o644))

	cfg := testConfig()
	read := &ReadFileTool{fsAccess: &cfg.FilesystemAccess}
	write := &WriteFileTool{fsAccess: &cfg.FilesystemAccess}
	list := &ListFilesTool{fsAccess: &cfg.FilesystemAccess}
	ctx := context.Background()

	out, err := write.Execute(ctx, map[string]any{"path": "src/main.go", "content": "package main"})
	require.NoError(t, err)
	assert.Contains(t, out, "12 bytes")

	out, err = read.Execute(ctx, map[string]any{"path": "src/main.go"})
	require.NoError(t, err)
	assert.Equal(t, "package main", out)

	_, err = read.Execute(ctx, map[string]any{"path": "secret.txt"})
	assert.ErrorContains(t, err, "hidden")

	_, err = read.Execute(ctx, map[string]any{"path": "./secret.txt"})
	assert.ErrorContains(t, err, "hidden", "cleaned paths are checked too")

	_, err = write.Execute(ctx, map[string]any{"path": "docs/guide.md", "content": "x"})
	assert.ErrorContains(t, err, "read-only")

	_, err = write.Execute(ctx, map[string]any{"path": ".keystone/config.yaml", "content": "x"})
	assert.ErrorContains(t, err, "hidden")

	out, err = list.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/guide.md", "src/main.go"}, strings.Split(out, "\n"))

	out, err = list.Execute(ctx, map[string]any{"path": "src", "pattern": "**/*.go"})
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", out)

	out, err = list.Execute(ctx, map[string]any{"pattern": "**/*.rs"})
	require.NoError(t, err)
	assert.Equal(t, "No files found.", out)
}

func TestIsCommandAllowed(t *testing.T) {
	matchers := compileAllowList([]string{"echo .*", "go (test|vet) .*", "bad(regex"}, zerolog.Nop())

	tests := []struct {
		command string
		want    bool
	}{
		{"echo hello", true},
		{"go test ./...", true},
		{"go build ./...", false},
		{"rm -rf /", false},
		{"xecho hi", false},
		{"bad(regex", true},
		{"   ", false},
	}

	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			assert.Equal(t, tc.want, isCommandAllowed(tc.command, matchers))
		})
	}
}

func TestExecuteCommandTool(t *testing.T) {
	tool := NewExecuteCommandTool([]string{"echo .*"}, zerolog.Nop())
	assert.Contains(t, tool.Description(), "echo .*")

	_, err := tool.Execute(context.Background(), map[string]any{"command": "ls"})
	assert.ErrorContains(t, err, "not in the list of allowed commands")

	out, err := tool.Execute(context.Background(), map[string]any{"command": "echo keystone"})
	require.NoError(t, err)
	assert.Contains(t, out, "keystone")

	assert.Contains(t, NewExecuteCommandTool(nil, zerolog.Nop()).Description(), "No commands")
}

type stubTool struct {
	calls int
}

func (s *stubTool) Name() string        { return "stub" }
func (s *stubTool) Description() string { return "stub tool" }
func (s *stubTool) Schema() map[string]any {
	return objectSchema(map[string]any{"n": map[string]any{"type": "integer"}}, "n")
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	s.calls++
	return "done", nil
}

type stubConfirmer struct {
	answer bool
	seen   []pipeline.Request
}

func (c *stubConfirmer) Confirm(ctx context.Context, req pipeline.Request) (bool, error) {
	c.seen = append(c.seen, req)
	return c.answer, nil
}

func stubRequest(params map[string]any) pipeline.Request {
	return pipeline.Request{ID: "c1", ToolName: "stub", Parameters: params, Justification: "testing"}
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		e := NewExecutor(nil, ModeAuto, nil, zerolog.Nop())
		_, err := e.Execute(ctx, stubRequest(map[string]any{"n": 1}))
		assert.ErrorContains(t, err, "not available")
	})

	t.Run("schema violation", func(t *testing.T) {
		tool := &stubTool{}
		e := NewExecutor([]Tool{tool}, ModeAuto, nil, zerolog.Nop())
		_, err := e.Execute(ctx, stubRequest(map[string]any{"n": "one"}))
		assert.ErrorContains(t, err, "invalid parameters")
		assert.Zero(t, tool.calls)
	})

	t.Run("auto mode runs", func(t *testing.T) {
		tool := &stubTool{}
		e := NewExecutor([]Tool{tool}, ModeAuto, nil, zerolog.Nop())
		res, err := e.Execute(ctx, stubRequest(map[string]any{"n": 1}))
		require.NoError(t, err)
		assert.Equal(t, pipeline.Result{RequestID: "c1", ToolName: "stub", Status: pipeline.StatusSuccess, Data: "done"}, res)
	})

	t.Run("prompt mode declined", func(t *testing.T) {
		tool := &stubTool{}
		confirmer := &stubConfirmer{answer: false}
		e := NewExecutor([]Tool{tool}, ModePrompt, confirmer, zerolog.Nop())
		res, err := e.Execute(ctx, stubRequest(map[string]any{"n": 1}))
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusDeclined, res.Status)
		assert.Zero(t, tool.calls)
		require.Len(t, confirmer.seen, 1)
		assert.Equal(t, "testing", confirmer.seen[0].Justification)
	})

	t.Run("prompt mode approved", func(t *testing.T) {
		tool := &stubTool{}
		e := NewExecutor([]Tool{tool}, ModePrompt, &stubConfirmer{answer: true}, zerolog.Nop())
		res, err := e.Execute(ctx, stubRequest(map[string]any{"n": 1}))
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusSuccess, res.Status)
		assert.Equal(t, 1, tool.calls)
	})

	t.Run("prompt mode without confirmer", func(t *testing.T) {
		e := NewExecutor([]Tool{&stubTool{}}, ModePrompt, nil, zerolog.Nop())
		_, err := e.Execute(ctx, stubRequest(map[string]any{"n": 1}))
		assert.Error(t, err)
	})
}
