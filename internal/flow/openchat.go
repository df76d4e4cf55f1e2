package flow

import (
	"context"
	"fmt"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/memory"
)

// handleOpenChat is the steady state once onboarding is done: persona,
// assembled context, and the live conversation go to the model verbatim.
func (e *Engine) handleOpenChat(ctx context.Context, message string, cctx memory.Context) (string, error) {
	reply, err := e.provider.Complete(ctx, &ai.Request{
		StaticContext: memory.FormatStaticContext(cctx.Static),
		System:        personaPrompt,
		Messages:      dynamicMessages(cctx.Dynamic, message),
		MaxTokens:     e.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return reply, nil
}
