package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/svc"
	"github.com/fridaysatfour/wingman/internal/types"
)

type StatusLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// Report a member's current stage and onboarding progress
func NewStatusLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StatusLogic {
	return &StatusLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *StatusLogic) Status(req *types.StatusRequest) (*types.StatusResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	progress, err := l.svcCtx.DB.StageProgressForUser(l.ctx, userID)
	if err != nil {
		logging.Errorf("[status] failed to load progress for user %s: %v", userID, err)
		return nil, err
	}

	stages := make([]types.StageStatus, 0, len(progress))
	for _, p := range progress {
		hasResult, err := l.svcCtx.DB.HasFinalResult(l.ctx, userID, p.Stage)
		if err != nil {
			logging.Warnf("[status] failed to check result for user %s stage %s: %v", userID, p.Stage, err)
		}
		s := types.StageStatus{
			Stage:      p.Stage,
			Step:       p.Step,
			Completion: p.Completion,
			IsComplete: p.IsComplete,
			HasResult:  hasResult,
		}
		if p.SkipUntil != nil {
			s.SkipUntil = p.SkipUntil.Format(time.RFC3339)
		}
		stages = append(stages, s)
	}

	return &types.StatusResponse{
		UserID:       userID,
		CurrentStage: string(l.svcCtx.Engine.CurrentStage(l.ctx, userID)),
		Stages:       stages,
	}, nil
}
