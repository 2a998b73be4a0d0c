package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

// WithActor adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, userID, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.ActorInfo{ID: userID, Role: role})
	return req.WithContext(ctx)
}

// WithToken adds the presented token's fingerprint and expiry.
func WithToken(req *http.Request, fingerprint string, expiresAt time.Time) *http.Request {
	ctx := requestcontext.WithToken(req.Context(), requestcontext.TokenInfo{Fingerprint: fingerprint, ExpiresAt: expiresAt})
	return req.WithContext(ctx)
}

// WithAuth adds both the actor and its token. This is the typical state for
// an authenticated request.
func WithAuth(req *http.Request, userID, role, fingerprint string, expiresAt time.Time) *http.Request {
	return WithToken(WithActor(req, userID, role), fingerprint, expiresAt)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
