package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		model: client.GenerativeModel(modelName),
	}, nil
}

// Send sends the window to the Gemini API. Tool results are rendered as user
// text since the history keeps no record of the original function call
// arguments.
func (g *GeminiLLMClient) Send(ctx context.Context, req Request) (*Response, error) {
	systemPrompt, turns := buildConversation(req)
	history := convertTurnsToGeminiContent(turns)

	g.model.SystemInstruction = nil
	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	g.model.Tools = convertToolsToGeminiTools(req.Tools)

	// The last message is the new prompt.
	last := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp)
}

// convertTurnsToGeminiContent renders turns as Gemini contents. The result is
// never empty because buildConversation always yields a user turn.
func convertTurnsToGeminiContent(turns []turn) []*genai.Content {
	var contents []*genai.Content
	for _, t := range turns {
		var parts []genai.Part
		if t.Text != "" {
			parts = append(parts, genai.Text(t.Text))
		}
		for _, r := range t.Results {
			parts = append(parts, genai.Text(fmt.Sprintf("Result of tool '%s' (call %s):\n%s", r.Name, r.ID, r.Content)))
		}
		if len(parts) == 0 {
			continue
		}

		role := "user"
		if t.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(openingMessage)}})
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, tool := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  convertSchemaToGemini(toolSchema(tool)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// convertSchemaToGemini maps the JSON schema subset used by tools onto
// genai.Schema.
func convertSchemaToGemini(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{}
	switch schema["type"] {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeObject
	}
	if d, ok := schema["description"].(string); ok {
		out.Description = d
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = convertSchemaToGemini(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = convertSchemaToGemini(pm)
			}
		}
	}
	switch r := schema["required"].(type) {
	case []string:
		out.Required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func processGeminiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	out := &Response{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Conversation += string(v)
		case genai.FunctionCall:
			out.addToolCall("", v.Name, v.Args)
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return out, nil
}
