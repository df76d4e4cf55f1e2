package chat

import (
	"net/http"

	"github.com/fridaysatfour/wingman/internal/httputil"
	"github.com/fridaysatfour/wingman/internal/logic/chat"
	"github.com/fridaysatfour/wingman/internal/svc"
	"github.com/fridaysatfour/wingman/internal/types"
)

// Process one member message through the flow engine
func SendTurnHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SendTurnRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}

		l := chat.NewSendTurnLogic(r.Context(), svcCtx)
		resp, err := l.SendTurn(&req)
		if err != nil {
			httputil.Error(w, err)
		} else {
			httputil.OkJSON(w, resp)
		}
	}
}
