// Package session serves logout and administrative token revocation.
package session

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	authmw "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/auth"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

const maxBodyBytes = 16 << 10

// Revoker records a token fingerprint as revoked until expiresAt.
type Revoker interface {
	Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error
}

// RevokeRequest names the token to revoke, either raw or by fingerprint.
type RevokeRequest struct {
	Token            string `json:"token,omitempty"`
	Fingerprint      string `json:"fingerprint,omitempty"`
	ExpiresAtEpochMs int64  `json:"expiresAtEpochMs,omitempty"`
}

// Handler handles session revocation endpoints.
type Handler struct {
	logger    *slog.Logger
	revoker   Revoker
	validator authmw.JWTValidator
}

// New creates a session Handler. validator resolves raw tokens submitted to
// the admin revoke endpoint.
func New(revoker Revoker, validator authmw.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		revoker:   revoker,
		validator: validator,
	}
}

// Register mounts the caller-facing routes. The router must already require
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
}

// RegisterAdmin mounts the privileged routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/sessions/revoke", h.handleAdminRevoke)
}

// handleLogout revokes the caller's own token until its natural expiry.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	tok, ok := requestcontext.Token(ctx)
	if !ok || tok.Fingerprint == "" {
		h.logger.ErrorContext(ctx, "token missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	if err := h.revoker.Revoke(ctx, tok.Fingerprint, tok.ExpiresAt); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke session on logout",
			"request_id", requestID,
			"user_id", authmw.GetUserID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "session could not be revoked"))
		return
	}

	h.logger.InfoContext(ctx, "session revoked on logout",
		"request_id", requestID,
		"user_id", authmw.GetUserID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, err := httputil.DecodeJSON[RevokeRequest](r, maxBodyBytes)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid revoke request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	fingerprint, expiresAt, err := h.resolve(req)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid revoke request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if err := h.revoker.Revoke(ctx, fingerprint, expiresAt); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke session",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "session could not be revoked"))
		return
	}

	h.logger.InfoContext(ctx, "session revoked by administrator",
		"request_id", requestID,
		"admin_id", authmw.GetUserID(ctx),
		"admin_role", authmw.GetRole(ctx),
		"fingerprint", fingerprint,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolve(req RevokeRequest) (string, time.Time, error) {
	switch {
	case req.Token != "" && req.Fingerprint != "":
		return "", time.Time{}, dErrors.New(dErrors.CodeBadRequest, "provide either token or fingerprint, not both")
	case req.Token != "":
		claims, err := h.validator.ValidateToken(req.Token)
		if err != nil {
			return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "token is not an active access token")
		}
		return claims.Fingerprint, claims.ExpiresAt, nil
	case req.Fingerprint != "":
		if !validFingerprint(req.Fingerprint) {
			return "", time.Time{}, dErrors.New(dErrors.CodeBadRequest, "fingerprint must be 64 hex characters")
		}
		if req.ExpiresAtEpochMs <= 0 {
			return "", time.Time{}, dErrors.New(dErrors.CodeBadRequest, "expiresAtEpochMs is required with fingerprint")
		}
		return req.Fingerprint, time.UnixMilli(req.ExpiresAtEpochMs).UTC(), nil
	default:
		return "", time.Time{}, dErrors.New(dErrors.CodeBadRequest, "token or fingerprint is required")
	}
}

func validFingerprint(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
