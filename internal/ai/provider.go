// Package ai wraps the LLM APIs behind a single completion interface.
// The flow layer treats providers as a black box: ordered messages plus
// a system prompt in, response text out.
package ai

import (
	"context"
	"time"

	"github.com/fridaysatfour/wingman/internal/logging"
)

// Message is one turn handed to the provider.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Request is a completion request.
type Request struct {
	// StaticContext is the leading system block. It must stay
	// byte-stable across turns for the same user so the provider-side
	// prompt cache can be reused; providers mark it cacheable where the
	// API supports that.
	StaticContext string `json:"static_context,omitempty"`

	// System is the persona/instruction prompt, placed after the static
	// block.
	System string `json:"system,omitempty"`

	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Model     string    `json:"model,omitempty"` // override of provider default
}

// Provider is the LLM client interface the flow layer depends on.
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Complete sends a request and returns the response text.
	Complete(ctx context.Context, req *Request) (string, error)
}

// withRetries runs fn with bounded exponential backoff. Only the LLM
// calls carry retries; local database operations never do.
func withRetries(ctx context.Context, id string, maxRetries int, fn func() (string, error)) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoff := 500 * time.Millisecond

	var text string
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		text, err = fn()
		if err == nil {
			return text, nil
		}
		if attempt == maxRetries {
			break
		}
		logging.Warnf("[%s] completion attempt %d/%d failed: %v", id, attempt, maxRetries, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", err
}
