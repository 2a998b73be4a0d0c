package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

// JWTValidator validates a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token fingerprint has been revoked.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
}

// JWTClaims are the claims the gate needs from a validated token.
type JWTClaims struct {
	UserID      string
	Role        string
	ExpiresAt   time.Time
	Fingerprint string // digest of the raw token, the revocation key
}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	actor, _ := requestcontext.Actor(ctx)
	return actor.ID
}

// GetRole retrieves the authenticated caller's role from the context.
func GetRole(ctx context.Context) string {
	actor, _ := requestcontext.Actor(ctx)
	return actor.Role
}

// RequireAuth validates the bearer token and consults the revocation cache
// before any claim is trusted. A revocation lookup that fails is treated as
// revoked.
func RequireAuth(validator JWTValidator, revocationChecker TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if revocationChecker != nil {
				revoked, err := revocationChecker.IsRevoked(ctx, claims.Fingerprint)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", requestID,
					)
					httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthorized", "Unable to verify token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"user_id", claims.UserID,
						"request_id", requestID,
					)
					httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.ActorInfo{ID: claims.UserID, Role: claims.Role})
			ctx = requestcontext.WithToken(ctx, requestcontext.TokenInfo{
				Fingerprint: claims.Fingerprint,
				ExpiresAt:   claims.ExpiresAt,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
