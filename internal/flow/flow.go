package flow

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/memory"
)

// Engine runs one conversation turn end to end: persist, route,
// assemble context, dispatch to the active stage, persist the reply.
// All state lives in the database; the engine itself is stateless and
// safe for concurrent turns.
type Engine struct {
	store      *db.Store
	messages   *memory.MessageStore
	assembler  *memory.Assembler
	provider   ai.Provider
	router     *Router
	skipWindow time.Duration
	maxTokens  int
}

func NewEngine(store *db.Store, messages *memory.MessageStore, assembler *memory.Assembler, provider ai.Provider, cfg config.FlowConfig, maxTokens int) *Engine {
	return &Engine{
		store:      store,
		messages:   messages,
		assembler:  assembler,
		provider:   provider,
		router:     NewRouter(store),
		skipWindow: cfg.SkipWindow(),
		maxTokens:  maxTokens,
	}
}

// HandleTurn processes one member message and always returns something
// sayable. Internal failures never surface to the member: any error or
// panic past the initial append degrades to the apology text.
func (e *Engine) HandleTurn(ctx context.Context, userID, threadID, message string) (reply string, stage Stage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("[flow] panic handling turn for user %s: %v", userID, r)
			reply, stage = apologyText, StageOpenChat
		}
	}()

	reply, stage, err := e.handleTurn(ctx, userID, threadID, message)
	if err != nil {
		logging.Errorf("[flow] turn failed for user %s (stage %s): %v", userID, stage, err)
		return apologyText, stage
	}

	// The reply is stored best-effort: a failed append loses buffer
	// accounting for one message, never the turn itself.
	if _, err := e.messages.AddMessage(ctx, userID, threadID, "assistant", reply); err != nil {
		logging.Warnf("[flow] failed to store assistant reply for user %s: %v", userID, err)
	}
	return reply, stage
}

func (e *Engine) handleTurn(ctx context.Context, userID, threadID, message string) (string, Stage, error) {
	// The member's message is the one write that must not be lost.
	if _, err := e.messages.AddMessage(ctx, userID, threadID, "user", message); err != nil {
		return "", StageOpenChat, err
	}

	stage := e.router.Route(ctx, userID)

	// A skip request during onboarding stamps the skip window and
	// re-routes; the router then falls through to the next stage.
	if (stage == StageAssessment || stage == StageProject) && IsSkipRequest(message) {
		until := time.Now().Add(e.skipWindow)
		if err := e.store.SetStageSkipUntil(ctx, userID, string(stage), until); err != nil {
			logging.Warnf("[flow] failed to set skip window for user %s stage %s: %v", userID, stage, err)
		} else {
			logging.Infof("[flow] user %s skipped %s until %s", userID, stage, until.Format(time.RFC3339))
			stage = e.router.Route(ctx, userID)
		}
	}

	cctx := e.assembler.GetCachingOptimizedContext(ctx, userID, threadID)

	var (
		reply string
		err   error
	)
	switch stage {
	case StageIntro:
		reply, err = e.handleIntro(ctx, userID, message, cctx)
	case StageAssessment:
		reply, err = e.handleAssessment(ctx, userID, message)
	case StageProject:
		reply, err = e.handleProject(ctx, userID, message, cctx)
	default:
		reply, err = e.handleOpenChat(ctx, message, cctx)
	}
	if err != nil {
		return "", stage, err
	}
	return reply, stage, nil
}

// CurrentStage reports which stage would handle the user's next turn.
func (e *Engine) CurrentStage(ctx context.Context, userID string) Stage {
	return e.router.Route(ctx, userID)
}

// loadProgress fetches stage progress, folding "no row yet" into a
// boolean so stage handlers can branch without touching sql errors.
func (e *Engine) loadProgress(ctx context.Context, userID string, stage Stage) (db.StageProgress, bool, error) {
	p, err := e.store.GetStageProgress(ctx, userID, string(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return db.StageProgress{}, false, nil
	}
	if err != nil {
		return db.StageProgress{}, false, err
	}
	if p.Answers == nil {
		p.Answers = map[string]string{}
	}
	return p, true, nil
}

// dynamicMessages converts the assembled dynamic context into the
// provider message list: recent summaries lead in as a synthetic user
// message, live messages follow oldest first, and the current message
// is guaranteed to be last.
func dynamicMessages(dyn memory.DynamicContext, current string) []ai.Message {
	msgs := make([]ai.Message, 0, len(dyn.Messages)+2)

	if len(dyn.RecentSummaries) > 0 {
		var b strings.Builder
		b.WriteString(summaryLeadIn)
		// Newest first in storage; read back oldest first.
		for i := len(dyn.RecentSummaries) - 1; i >= 0; i-- {
			b.WriteString(dyn.RecentSummaries[i].Summary)
			b.WriteString("\n\n")
		}
		msgs = append(msgs, ai.Message{Role: "user", Content: strings.TrimRight(b.String(), "\n")})
	}

	for _, m := range dyn.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}

	// The member's message was persisted before context assembly, so it
	// is usually already the last live message. Append only if not.
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != "user" || msgs[len(msgs)-1].Content != current {
		msgs = append(msgs, ai.Message{Role: "user", Content: current})
	}
	return msgs
}
