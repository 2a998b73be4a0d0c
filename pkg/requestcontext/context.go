// Package requestcontext carries request-scoped values (the authenticated
// actor, the presented token, client metadata, request ID and request time)
// without depending on net/http. Middleware sets them; the recorder, session
// handlers and tests read or inject them.
package requestcontext

import (
	"context"
	"time"
)

type (
	actorKey       struct{}
	tokenKey       struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	platformKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported so tests can seed raw values with context.WithValue.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyToken       = tokenKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyPlatform    = platformKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context (actor identity, presented token)
// -----------------------------------------------------------------------------

// ActorInfo identifies the authenticated caller.
type ActorInfo struct {
	ID   string
	Role string
}

// Actor retrieves the authenticated caller. ok is false for anonymous requests.
func Actor(ctx context.Context) (ActorInfo, bool) {
	a, ok := ctx.Value(ContextKeyActor).(ActorInfo)
	return a, ok
}

// WithActor injects the authenticated caller into the context.
func WithActor(ctx context.Context, actor ActorInfo) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// TokenInfo describes the bearer token that authenticated the request.
type TokenInfo struct {
	Fingerprint string
	ExpiresAt   time.Time
}

// Token retrieves the presented token's fingerprint and natural expiry.
func Token(ctx context.Context) (TokenInfo, bool) {
	t, ok := ctx.Value(ContextKeyToken).(TokenInfo)
	return t, ok
}

// WithToken injects the presented token's fingerprint and expiry.
func WithToken(ctx context.Context, token TokenInfo) context.Context {
	return context.WithValue(ctx, ContextKeyToken, token)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// ClientPlatform retrieves the "browser / OS" summary derived from the User-Agent.
func ClientPlatform(ctx context.Context) string {
	if p, ok := ctx.Value(ContextKeyPlatform).(string); ok {
		return p
	}
	return ""
}

// WithClientPlatform injects the client platform summary.
func WithClientPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, ContextKeyPlatform, platform)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now returns the time stamped by the requesttime middleware, or the wall
// clock when none was stamped.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
