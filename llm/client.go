package llm

import (
	"context"
	"fmt"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/rs/zerolog"
)

// Request is one model call: the history window, the active persona and the
// tools the model may request.
type Request struct {
	Messages      []session.WireMessage
	PersonaID     string
	PersonaPrompt string
	Tools         []tools.Tool
}

// Response is what the model produced. Any field may be empty.
type Response struct {
	Conversation string
	ToolRequests []pipeline.Request
	// Invalid holds the tool calls that could not be decoded, as tool
	// validation errors. They are reported and never executed.
	Invalid []error
}

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// New returns the client for the named vendor. An empty name selects the mock
// client.
func New(ctx context.Context, name, model string, logger zerolog.Logger) (LLMClient, error) {
	var (
		client LLMClient
		err    error
	)
	switch name {
	case "gemini":
		client, err = NewGeminiLLMClient(ctx, model)
	case "openai":
		client, err = NewOpenAILLMClient(ctx, model)
	case "bedrock":
		client, err = NewBedrockLLMClient(ctx, model)
	case "anthropic":
		client, err = NewAnthropicLLMClient(ctx, model)
	case "", "mock":
		client = &MockLLMClient{}
	default:
		return nil, errors.Categorize(errors.CategoryConfig, nil, "unknown llm %q", name)
	}
	if err != nil {
		return nil, errors.Categorize(errors.CategoryLLM, err, "could not initialize %s client", name)
	}
	logger.Info().Str("llm", name).Str("model", model).Msg("LLM client initialized")
	return client, nil
}

// MockLLMClient parrots the last message back. It never requests tools.
type MockLLMClient struct{}

func (m *MockLLMClient) Send(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return &Response{Conversation: "I am a mock LLM. There is nothing to respond to."}, nil
	}
	last := req.Messages[len(req.Messages)-1]
	persona := ""
	if req.PersonaID != "" {
		persona = fmt.Sprintf(" (as %s)", req.PersonaID)
	}
	return &Response{
		Conversation: fmt.Sprintf("I am a mock LLM%s. You said: '%s'. I cannot use tools.", persona, last.Content),
	}, nil
}
