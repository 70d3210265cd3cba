package llm

import (
	"testing"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolWindow() []turn {
	_, turns := buildConversation(Request{Messages: []session.WireMessage{
		{Role: "user", Content: "list files"},
		{Role: "tool", Content: "a.go\nb.go", Name: "list_files", ToolCallID: "c1"},
	}})
	return turns
}

func TestConvertTurnsToAnthropicMessages(t *testing.T) {
	messages := convertTurnsToAnthropicMessages(toolWindow())
	require.Len(t, messages, 3)

	assert.Equal(t, anthropic.MessageParamRoleUser, messages[0].Role)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Content, 1)
	require.NotNil(t, messages[1].Content[0].OfToolUse)
	assert.Equal(t, "c1", messages[1].Content[0].OfToolUse.ID)

	assert.Equal(t, anthropic.MessageParamRoleUser, messages[2].Role)
	require.NotNil(t, messages[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", messages[2].Content[0].OfToolResult.ToolUseID)
}

func TestConvertTurnsToOpenAIMessages(t *testing.T) {
	messages := convertTurnsToOpenAIMessages("be helpful", toolWindow())
	require.Len(t, messages, 4)

	assert.NotNil(t, messages[0].OfSystem)
	assert.NotNil(t, messages[1].OfUser)
	require.NotNil(t, messages[2].OfAssistant)
	require.Len(t, messages[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, messages[3].OfTool)
	assert.Equal(t, "c1", messages[3].OfTool.ToolCallID)
}

func TestConvertTools(t *testing.T) {
	available := []tools.Tool{&MockTool{name: "read_file", description: "reads"}}

	anthropicTools := convertToolsToAnthropicTools(available)
	require.Len(t, anthropicTools, 1)
	assert.Equal(t, []string{"path", JustificationArg}, anthropicTools[0].InputSchema.Required)

	openAITools := convertToolsToOpenAITools(available)
	require.Len(t, openAITools, 1)

	assert.Nil(t, convertToolsToAnthropicTools(nil))
	assert.Nil(t, convertToolsToOpenAITools(nil))
	assert.Nil(t, convertToolsToGeminiTools(nil))
}

func TestProcessOpenaiResponse(t *testing.T) {
	resp, err := processOpenaiResponse(&openai.ChatCompletion{})
	require.NoError(t, err)
	assert.Empty(t, resp.Conversation)
	assert.Empty(t, resp.ToolRequests)

	resp, err = processAnthropicResponse(nil)
	require.NoError(t, err)
	assert.Empty(t, resp.ToolRequests)
}
