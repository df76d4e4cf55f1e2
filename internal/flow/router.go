package flow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/logging"
)

// Stage is one phase of the onboarding state machine.
type Stage string

const (
	StageIntro      Stage = "intro"
	StageAssessment Stage = "assessment"
	StageProject    Stage = "project"
	StageOpenChat   Stage = "open_chat"
)

// Router decides which stage handles the next turn. The decision comes
// entirely from cheap existence/flag checks against the database -
// never from an LLM call - so routing is deterministic and fast.
type Router struct {
	store *db.Store
}

// NewRouter creates a router over the shared database.
func NewRouter(store *db.Store) *Router {
	return &Router{store: store}
}

// Route evaluates the stage priority list for a user:
//
//  1. intro not complete        -> intro
//  2. no assessment result and
//     not inside a skip window  -> assessment
//  3. no project result and
//     not inside a skip window  -> project setup
//  4. otherwise                 -> open chat
//
// If the database is unavailable the router fails toward
// re-onboarding (intro) rather than silently entering open chat.
func (r *Router) Route(ctx context.Context, userID string) Stage {
	intro, err := r.store.GetStageProgress(ctx, userID, string(StageIntro))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warnf("[router] intro lookup failed for %s, routing to intro: %v", userID, err)
		}
		return StageIntro
	}
	if !intro.IsComplete {
		return StageIntro
	}

	done, err := r.store.HasFinalResult(ctx, userID, string(StageAssessment))
	if err != nil {
		logging.Warnf("[router] assessment lookup failed for %s, routing to intro: %v", userID, err)
		return StageIntro
	}
	if !done && !r.insideSkipWindow(ctx, userID, StageAssessment) {
		return StageAssessment
	}

	done, err = r.store.HasFinalResult(ctx, userID, string(StageProject))
	if err != nil {
		logging.Warnf("[router] project lookup failed for %s, routing to intro: %v", userID, err)
		return StageIntro
	}
	if !done && !r.insideSkipWindow(ctx, userID, StageProject) {
		return StageProject
	}

	return StageOpenChat
}

// insideSkipWindow re-evaluates the stage's skip timestamp against the
// wall clock on every call; expiry is time-driven so the result is
// never cached.
func (r *Router) insideSkipWindow(ctx context.Context, userID string, stage Stage) bool {
	p, err := r.store.GetStageProgress(ctx, userID, string(stage))
	if err != nil {
		return false
	}
	return p.SkipUntil != nil && time.Now().Before(*p.SkipUntil)
}
