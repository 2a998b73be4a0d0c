// Package recovery turns a handler panic into a 500 envelope.
package recovery

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/httputil"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

// Recover logs the panic with its stack and answers 500. http.ErrAbortHandler
// is re-raised so net/http can drop the connection silently.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}
				logger.ErrorContext(r.Context(), "handler panicked",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
					"stack", string(debug.Stack()),
				)
				httputil.WriteErrorCode(w, http.StatusInternalServerError, string(dErrors.CodeInternal), "")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
