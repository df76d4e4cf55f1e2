package chat

import (
	"net/http"

	"github.com/fridaysatfour/wingman/internal/httputil"
	"github.com/fridaysatfour/wingman/internal/logic/chat"
	"github.com/fridaysatfour/wingman/internal/svc"
	"github.com/fridaysatfour/wingman/internal/types"
)

// Report a member's current stage and onboarding progress
func StatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StatusRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}

		l := chat.NewStatusLogic(r.Context(), svcCtx)
		resp, err := l.Status(&req)
		if err != nil {
			httputil.Error(w, err)
		} else {
			httputil.OkJSON(w, resp)
		}
	}
}
