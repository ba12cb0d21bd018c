// Package httpserver owns construction of the process HTTP server so that
// cmd/server stays wiring-only.
package httpserver

import (
	"net/http"
	"time"
)

// New returns the server the roster API listens on. Header reads and idle
// keep-alive connections are bounded; request bodies are not, since bulk
// imports may be large.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
