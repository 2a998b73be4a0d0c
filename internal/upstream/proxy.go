// Package upstream forwards gateway traffic to the records application.
package upstream

import (
	"errors"
	"log/slog"
	"net/http"
	proxyutil "net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	request "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/request"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

// Headers the gateway asserts to the upstream. Inbound copies are dropped so
// a client cannot spoof them.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// Option configures the proxy.
type Option func(*config)

type config struct {
	transport http.RoundTripper
}

// WithTransport replaces the outbound round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// New returns a handler proxying every request to target. A failed round
// trip answers 502 with the standard error envelope.
func New(target *url.URL, logger *slog.Logger, opts ...Option) http.Handler {
	cfg := &config{transport: defaultTransport()}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return &proxyutil.ReverseProxy{
		Rewrite: func(pr *proxyutil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host

			ctx := pr.In.Context()
			pr.Out.Header.Del(HeaderActorID)
			pr.Out.Header.Del(HeaderActorRole)
			if id := request.GetRequestID(ctx); id != "" {
				pr.Out.Header.Set(request.HeaderRequestID, id)
			}
			if actor, ok := requestcontext.Actor(ctx); ok {
				pr.Out.Header.Set(HeaderActorID, actor.ID)
				pr.Out.Header.Set(HeaderActorRole, actor.Role)
			}
		},
		Transport:     cfg.transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ctx := r.Context()
			if errors.Is(err, r.Context().Err()) {
				logger.WarnContext(ctx, "upstream request cancelled",
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
			} else {
				logger.ErrorContext(ctx, "upstream request failed",
					"request_id", request.GetRequestID(ctx),
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
			}
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadGateway, "upstream unavailable"))
		},
	}
}

func defaultTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 30 * time.Second
	t.MaxIdleConnsPerHost = 32
	return otelhttp.NewTransport(t)
}
