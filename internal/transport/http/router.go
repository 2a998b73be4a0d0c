// Package httptransport assembles the gateway's HTTP surface.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditloghandler "github.com/niksbanna/ehr-portal-sub000/internal/auditlog/handler"
	"github.com/niksbanna/ehr-portal-sub000/internal/auth/session"
	"github.com/niksbanna/ehr-portal-sub000/internal/platform/metrics"
	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/recorder"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/admin"
	authmw "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/auth"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/metadata"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/recovery"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/requesttime"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Logger          *slog.Logger
	APIPrefix       string
	PrivilegedRoles []string
	CORSOrigins     []string

	Validator   authmw.JWTValidator
	Revocations revocation.Cache
	Recorder    *recorder.Recorder
	AuditLogs   auditloghandler.Service
	Upstream    http.Handler

	// Optional.
	HTTPMetrics    *metrics.HTTP
	MetricsHandler http.Handler
	Clock          func() time.Time
}

// NewRouter wires all endpoints.
//
// Every request gets a request ID, panic recovery, a request time and
// client metadata.
// Under the API prefix, login is public but audited. Everything else passes
// the auth gate before the audit recorder, so rejected tokens leave no
// record. Admin routes add the privileged-role guard inside the recorder,
// which means a forbidden mutation attempt is still audited.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(recovery.Recover(d.Logger))
	if d.Clock != nil {
		r.Use(requesttime.WithClock(d.Clock))
	} else {
		r.Use(requesttime.Middleware)
	}
	r.Use(metadata.ClientMetadata)
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware)
	}
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID},
			ExposedHeaders:   []string{request.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	sessions := session.New(d.Revocations, d.Validator, d.Logger)
	auditLogs := auditloghandler.New(d.AuditLogs, d.Logger)

	r.Route(d.APIPrefix, func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(d.Recorder.Middleware)
			public.Handle("/auth/login", d.Upstream)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(authmw.RequireAuth(d.Validator, d.Revocations, d.Logger))
			protected.Use(d.Recorder.Middleware)

			sessions.Register(protected)
			protected.Group(func(privileged chi.Router) {
				privileged.Use(admin.RequireRole(d.PrivilegedRoles, d.Logger))
				auditLogs.Register(privileged)
				sessions.RegisterAdmin(privileged)
			})

			protected.Handle("/*", d.Upstream)
		})
	})

	return r
}
