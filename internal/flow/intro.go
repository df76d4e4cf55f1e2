package flow

import (
	"context"
	"fmt"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/memory"
)

// introConcepts is the fixed ordered set of ideas the intro must cover
// before the member can advance. The welcome message covers the first.
var introConcepts = []string{"memory", "adaptivity", "support", "journey"}

// handleIntro walks the member through the intro concepts one turn at a
// time. Advancing out of intro requires both every concept covered and
// an explicit ready signal from the member.
func (e *Engine) handleIntro(ctx context.Context, userID, message string, cctx memory.Context) (string, error) {
	p, exists, err := e.loadProgress(ctx, userID, StageIntro)
	if err != nil {
		return "", err
	}
	if !exists {
		p = db.StageProgress{
			UserID:  userID,
			Stage:   string(StageIntro),
			Step:    1,
			Answers: map[string]string{"concept:" + introConcepts[0]: "covered"},
		}
		p.Completion = 100 / float64(len(introConcepts))
		if err := e.store.UpsertStageProgress(ctx, p); err != nil {
			return "", err
		}
		return introWelcome, nil
	}

	covered := 0
	for _, c := range introConcepts {
		if p.Answers["concept:"+c] == "covered" {
			covered++
		}
	}

	if covered == len(introConcepts) {
		if IsReadySignal(message) {
			p.IsComplete = true
			p.Completion = 100
			if err := e.store.UpsertStageProgress(ctx, p); err != nil {
				return "", err
			}
			return introCompleteText, nil
		}
		// Everything covered but no ready signal yet: keep the
		// conversation going and nudge toward starting.
		return e.introReply(ctx, message, cctx, introConceptGuidance["journey"])
	}

	// Cover the next concept this turn.
	next := introConcepts[covered]
	reply, err := e.introReply(ctx, message, cctx, introConceptGuidance[next])
	if err != nil {
		return "", err
	}

	p.Answers["concept:"+next] = "covered"
	p.Step = covered + 1
	p.Completion = float64(covered+1) / float64(len(introConcepts)) * 100
	if err := e.store.UpsertStageProgress(ctx, p); err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Engine) introReply(ctx context.Context, message string, cctx memory.Context, guidance string) (string, error) {
	system := fmt.Sprintf("%s\n\nYou are in the introduction phase with a new member. %s Respond to what they just said first, then work the point in naturally.", personaPrompt, guidance)
	reply, err := e.provider.Complete(ctx, &ai.Request{
		StaticContext: memory.FormatStaticContext(cctx.Static),
		System:        system,
		Messages:      dynamicMessages(cctx.Dynamic, message),
		MaxTokens:     e.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("intro reply failed: %w", err)
	}
	return reply, nil
}
