package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/fridaysatfour/wingman/internal/svc"
	"github.com/fridaysatfour/wingman/internal/types"

	"github.com/google/uuid"
)

type SendTurnLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// Process one member message through the flow engine
func NewSendTurnLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SendTurnLogic {
	return &SendTurnLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *SendTurnLogic) SendTurn(req *types.SendTurnRequest) (*types.SendTurnResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.New("message is required")
	}

	// No thread means a fresh conversation.
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.New().String()
	}

	reply, stage := l.svcCtx.Engine.HandleTurn(l.ctx, userID, threadID, message)

	return &types.SendTurnResponse{
		ThreadID: threadID,
		Response: reply,
		Stage:    string(stage),
	}, nil
}
