package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements the OpenAI API using the official SDK.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	maxRetries int
	timeout    time.Duration
}

// NewOpenAIProvider creates a new OpenAI provider. The model id comes
// from config.
func NewOpenAIProvider(apiKey, model string, maxRetries int, timeout time.Duration) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return "openai"
}

// Complete sends a request and returns the response text. OpenAI caches
// long stable prompt prefixes automatically, so the static context just
// needs to lead the system message and stay byte-identical.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (string, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	system := req.StaticContext
	if req.System != "" {
		if system != "" {
			system += "\n\n"
		}
		system += req.System
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	return withRetries(ctx, p.ID(), p.maxRetries, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			return "", fmt.Errorf("openai request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
