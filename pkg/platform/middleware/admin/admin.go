package admin

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

// RequireRole admits only authenticated callers whose role is in roles.
// Everyone else receives 403. It must run after auth.RequireAuth.
func RequireRole(roles []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestcontext.Actor(ctx)
			if !ok || !slices.Contains(roles, actor.Role) {
				logger.WarnContext(ctx, "privileged access denied",
					"user_id", actor.ID,
					"role", actor.Role,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", "Insufficient role for this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
