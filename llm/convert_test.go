package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTool is a simple mock tool for testing
type MockTool struct {
	name        string
	description string
}

func (m *MockTool) Name() string        { return m.name }
func (m *MockTool) Description() string { return m.description }
func (m *MockTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "description": "file path"},
			"lines": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
		"required": []string{"path"},
	}
}
func (m *MockTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "mock result", nil
}

func TestBuildConversation(t *testing.T) {
	req := Request{
		Messages: []session.WireMessage{
			{Role: "system", Content: "S1"},
			{Role: "user", Content: "read two files"},
			{Role: "assistant", Content: "Reading them now."},
			{Role: "tool", Content: "a", Name: "read_file", ToolCallID: "c1"},
			{Role: "tool", Content: "b", Name: "read_file", ToolCallID: "c2"},
			{Role: "system", Content: "S2"},
			{Role: "tool", Content: "c", Name: "list_files", ToolCallID: "c3"},
		},
		PersonaID:     "reviewer",
		PersonaPrompt: "Be strict.",
	}

	system, turns := buildConversation(req)

	assert.Equal(t, "S1\n\nS2\n\nActive persona (reviewer):\nBe strict.", system)
	assert.Equal(t, []turn{
		{Role: session.RoleUser, Text: "read two files"},
		{Role: session.RoleAssistant, Text: "Reading them now.", Calls: []toolCall{{ID: "c1", Name: "read_file"}, {ID: "c2", Name: "read_file"}}},
		{Role: session.RoleUser, Results: []toolResult{{ID: "c1", Name: "read_file", Content: "a"}, {ID: "c2", Name: "read_file", Content: "b"}}},
		{Role: session.RoleAssistant, Calls: []toolCall{{ID: "c3", Name: "list_files"}}},
		{Role: session.RoleUser, Results: []toolResult{{ID: "c3", Name: "list_files", Content: "c"}}},
	}, turns)
}

func TestBuildConversationSystemOnly(t *testing.T) {
	system, turns := buildConversation(Request{Messages: []session.WireMessage{{Role: "system", Content: "S"}}})
	assert.Equal(t, "S", system)
	assert.Equal(t, []turn{{Role: session.RoleUser, Text: openingMessage}}, turns)
}

func TestToolSchemaAddsJustification(t *testing.T) {
	tool := &MockTool{name: "read_file"}
	schema := toolSchema(tool)

	props, required := schemaParts(schema)
	assert.Contains(t, props, "path")
	assert.Contains(t, props, JustificationArg)
	assert.Equal(t, []string{"path", JustificationArg}, required)

	// the tool's own schema is untouched
	_, original := schemaParts(tool.Schema())
	assert.Equal(t, []string{"path"}, original)
	assert.NotContains(t, tool.Schema()["properties"], JustificationArg)
}

func TestToRequest(t *testing.T) {
	req, err := toRequest("c9", "read_file", map[string]any{"path": "go.mod", JustificationArg: "check module"})
	require.NoError(t, err)
	assert.Equal(t, "c9", req.ID)
	assert.Equal(t, map[string]any{"path": "go.mod"}, req.Parameters)
	assert.Equal(t, "check module", req.Justification)

	generated, err := toRequest("", "list_files", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.ID, "call_"))
	assert.NotNil(t, generated.Parameters)
	assert.Empty(t, generated.Justification)
}

func TestToRequestRejectsMalformedCalls(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		args     map[string]any
	}{
		{"empty tool name", "", map[string]any{"path": "go.mod"}},
		{"justification not a string", "read_file", map[string]any{"path": "go.mod", JustificationArg: 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toRequest("c1", tt.toolName, tt.args)
			require.Error(t, err)
			assert.Equal(t, errors.CategoryToolValidation, errors.CategoryOf(err))

			var resp Response
			resp.addToolCall("c1", tt.toolName, tt.args)
			assert.Empty(t, resp.ToolRequests)
			require.Len(t, resp.Invalid, 1)
		})
	}
}

func TestConvertSchemaToGemini(t *testing.T) {
	s := convertSchemaToGemini(toolSchema(&MockTool{name: "read_file"}))
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, genai.TypeString, s.Properties["path"].Type)
	assert.Equal(t, genai.TypeArray, s.Properties["lines"].Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["lines"].Items.Type)
	assert.Equal(t, []string{"path", JustificationArg}, s.Required)
}

func TestConvertTurnsToGeminiContent(t *testing.T) {
	_, turns := buildConversation(Request{Messages: []session.WireMessage{
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "ok", Name: "read_file", ToolCallID: "c1"},
	}})
	contents := convertTurnsToGeminiContent(turns)

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "user", contents[1].Role)
	assert.Equal(t, genai.Text("Result of tool 'read_file' (call c1):\nok"), contents[1].Parts[0])
}

func TestMockLLMClient(t *testing.T) {
	resp, err := (&MockLLMClient{}).Send(context.Background(), Request{
		Messages:  []session.WireMessage{{Role: "user", Content: "hello"}},
		PersonaID: "catalyst",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Conversation, "You said: 'hello'")
	assert.Contains(t, resp.Conversation, "as catalyst")
	assert.Empty(t, resp.ToolRequests)
}

func TestNewUnknownClient(t *testing.T) {
	_, err := New(context.Background(), "parrot", "", zerolog.Nop())
	assert.Error(t, err)

	c, err := New(context.Background(), "", "", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MockLLMClient{}, c)
}
