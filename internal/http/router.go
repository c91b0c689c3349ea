// Package httpapi assembles the public HTTP surface: service info, health,
// Prometheus metrics and the mounted API handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triplecheck/internal/platform/middleware"
	"triplecheck/pkg/platform/httputil"
)

const serviceName = "triplecheck"

const healthCheckTimeout = 2 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options configures the router.
type Options struct {
	Logger   *slog.Logger
	Version  string
	Gatherer prometheus.Gatherer
	// Checks are run by /health; any failure makes the service unhealthy.
	Checks map[string]HealthCheck
}

// NewRouter wires all public endpoints.
func NewRouter(opts Options, registrars ...Registrar) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"service": serviceName,
			"version": opts.Version,
			"status":  "healthy",
			"endpoints": []string{
				"GET /health",
				"GET /metrics",
				"POST /v1/validate",
				"POST /v1/validate/batch",
				"GET /v1/reports",
				"GET /v1/reports/{id}",
				"GET /v1/status",
			},
		})
	})
	r.Get("/health", healthHandler(opts.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		healthy := true
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				healthy = false
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status": status,
			"checks": results,
		})
	}
}
