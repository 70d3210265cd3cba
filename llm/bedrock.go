package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
// BEDROCK_ENDPOINT_URL overrides the service endpoint.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*bedrockruntime.Options)
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
		region:  cfg.Region,
	}, nil
}

// Send invokes the model with an Anthropic messages body.
func (b *BedrockLLMClient) Send(ctx context.Context, req Request) (*Response, error) {
	systemPrompt, turns := buildConversation(req)

	requestBody, err := createAnthropicRequest(convertTurnsToAnthropicFormat(turns), systemPrompt, req.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model in %s", b.region)
	}

	return processBedrockResponse(resp.Body)
}

// convertTurnsToAnthropicFormat renders turns as the JSON messages of the
// Anthropic body used by Bedrock.
func convertTurnsToAnthropicFormat(turns []turn) []map[string]any {
	var messages []map[string]any
	for _, t := range turns {
		var content []map[string]any
		if t.Text != "" {
			content = append(content, map[string]any{"type": "text", "text": t.Text})
		}
		for _, c := range t.Calls {
			content = append(content, map[string]any{
				"type":  "tool_use",
				"id":    c.ID,
				"name":  c.Name,
				"input": map[string]any{},
			})
		}
		for _, r := range t.Results {
			text := r.Content
			if text == "" {
				text = emptyToolOutput
			}
			content = append(content, map[string]any{
				"type":        "tool_result",
				"tool_use_id": r.ID,
				"content":     text,
			})
		}
		if len(content) == 0 {
			continue
		}

		role := "user"
		if t.Role == session.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, map[string]any{"role": role, "content": content})
	}
	return messages
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]any, systemPrompt string, availableTools []tools.Tool) ([]byte, error) {
	request := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        defaultMaxTokens,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	if len(availableTools) > 0 {
		var toolDefs []map[string]any
		for _, tool := range availableTools {
			toolDefs = append(toolDefs, map[string]any{
				"name":         tool.Name(),
				"description":  tool.Description(),
				"input_schema": toolSchema(tool),
			})
		}
		request["tools"] = toolDefs
	}

	return json.Marshal(request)
}

// processBedrockResponse converts the Anthropic response body.
func processBedrockResponse(body []byte) (*Response, error) {
	var response struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return nil, errors.New("Bedrock API error: %v", response.Error)
	}

	out := &Response{}
	for _, item := range response.Content {
		switch item.Type {
		case "text":
			out.Conversation += item.Text
		case "tool_use":
			out.addToolCall(item.ID, item.Name, item.Input)
		}
	}
	return out, nil
}
