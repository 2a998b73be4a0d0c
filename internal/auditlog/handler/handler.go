// Package handler serves the privileged audit trail read endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/query"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	authmw "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/auth"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
)

// Service answers audit queries.
type Service interface {
	List(ctx context.Context, filter audit.Filter, page audit.Page) (query.Result, error)
	GetByID(ctx context.Context, id string) (audit.Record, error)
}

// Handler handles audit log endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the read routes. The router must already enforce the
// privileged-role guard.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit-logs", h.handleList)
	r.Get("/admin/audit-logs/{id}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.List(ctx, parseFilter(r), page)
	if err != nil {
		h.logFailure(ctx, "list audit records failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit records listed",
		"request_id", requestID,
		"admin_id", authmw.GetUserID(ctx),
		"admin_role", authmw.GetRole(ctx),
		"total", result.Meta.Total,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	record, err := h.service.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "get audit record failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}

func parsePage(r *http.Request) (audit.Page, error) {
	pageNum, err := httputil.QueryInt(r, "page", 0)
	if err != nil {
		return audit.Page{}, err
	}
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		return audit.Page{}, err
	}
	return audit.Page{
		Page:  pageNum,
		Limit: limit,
		Sort:  audit.SortOrder(strings.ToLower(r.URL.Query().Get("sort"))),
	}, nil
}

func parseFilter(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		ActorID:    q.Get("actorId"),
		ActorRole:  q.Get("actorRole"),
		EntityType: q.Get("entityType"),
		Action:     audit.Action(strings.ToUpper(q.Get("action"))),
		Outcome:    audit.Outcome(strings.ToUpper(q.Get("outcome"))),
	}
}
