package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"triplecheck/pkg/platform/httputil"
	"triplecheck/pkg/requestcontext"
)

// Middleware rejects requests from clients that exceed their window.
type Middleware struct {
	limiter *SlidingWindow
	logger  *slog.Logger
}

func NewMiddleware(limiter *SlidingWindow, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, logger: logger}
}

// Handler keys on the client IP recorded by the request id middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := requestcontext.ClientIP(ctx)
		if key == "" {
			key = r.RemoteAddr
		}

		result := m.limiter.Allow(key)
		setHeaders(w, result)
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded", "client_ip", key, "limit", result.Limit)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(m.limiter.clock())))
			httputil.WriteError(w, httputil.NewError(httputil.CodeRateLimited,
				"too many requests from this client, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunSweeper evicts idle clients every interval until ctx is done.
func (m *Middleware) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.limiter.Sweep()
		}
	}
}

func setHeaders(w http.ResponseWriter, r Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetAt.Unix(), 10))
}
