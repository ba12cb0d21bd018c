// Package httptransport composes the HTTP surface: the roster endpoints,
// health checking, and Prometheus metrics. Transport concerns stay here;
// handlers delegate to services.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memberbase/internal/roster/handler"
	"memberbase/pkg/platform/httputil"
	"memberbase/pkg/requestcontext"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires all endpoints. Health checkers are optional; a nil entry
// is skipped so the Redis-less single-instance deployment stays healthy.
func NewRouter(roster *handler.Handler, checkers ...HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestContext)

	r.Get("/healthz", healthHandler(checkers))
	r.Handle("/metrics", promhttp.Handler())

	roster.Register(r)
	return r
}

// requestContext copies transport-scoped values into the request context so
// services read them without importing net/http: the chi request id and a
// single per-request clock reading.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
		}
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func healthHandler(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, checker := range checkers {
			if checker == nil {
				continue
			}
			if err := checker.Health(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
