package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// AnthropicProvider implements the Anthropic Claude API using the
// official SDK.
type AnthropicProvider struct {
	client     anthropic.Client
	model      string
	maxRetries int
	timeout    time.Duration
}

// NewAnthropicProvider creates a new Anthropic provider. The model id
// comes from config.
func NewAnthropicProvider(apiKey, model string, maxRetries int, timeout time.Duration) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// Complete sends a request and returns the response text. The static
// context block carries an ephemeral cache_control marker so the API
// reuses its prompt cache across turns as long as the block bytes do
// not change.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (string, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  buildAnthropicMessages(req.Messages),
	}

	var system []anthropic.TextBlockParam
	if req.StaticContext != "" {
		system = append(system, anthropic.TextBlockParam{
			Text:         req.StaticContext,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		})
	}
	if req.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.System})
	}
	params.System = system

	return withRetries(ctx, p.ID(), p.maxRetries, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		msg, err := p.client.Messages.New(callCtx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic request failed: %w", err)
		}

		var sb strings.Builder
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				sb.WriteString(tb.Text)
			}
		}
		return sb.String(), nil
	})
}

// buildAnthropicMessages converts flow messages to Anthropic format.
// Empty messages are skipped to avoid "text content blocks must be
// non-empty" API errors.
func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case "user":
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}
