package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the gateway's timeouts. WriteTimeout is
// left unset because proxied upstream responses may stream.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
