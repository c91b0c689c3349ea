package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"triplecheck/pkg/platform/circuit"
)

const tracerName = "triplecheck/verification/remote"

// Observer receives the outcome of every guarded call.
type Observer interface {
	ObserveRemoteCall(verifier, outcome string, d time.Duration)
}

// Guard wraps a Verifier with an outbound rate limit and a circuit breaker so
// a batch cannot flood, or keep hammering, a failing service.
type Guard struct {
	inner    Verifier
	limiter  *rate.Limiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
	observer Observer
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithRateLimit allows rps calls per second with the given burst. rps <= 0
// disables limiting.
func WithRateLimit(rps float64, burst int) GuardOption {
	return func(g *Guard) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guard) {
		g.breaker = b
	}
}

func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithObserver(o Observer) GuardOption {
	return func(g *Guard) {
		g.observer = o
	}
}

// NewGuard wraps inner. Without options the guard only adds tracing.
func NewGuard(inner Verifier, opts ...GuardOption) *Guard {
	g := &Guard{inner: inner}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Name() string {
	return g.inner.Name()
}

func (g *Guard) Verify(ctx context.Context, item map[string]any) (Verdict, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "remote.verify")
	span.SetAttributes(attribute.String("verifier", g.Name()))
	defer span.End()

	start := time.Now()
	verdict, err := g.call(ctx, item)
	outcome := "success"
	switch {
	case errors.Is(err, ErrNotApplicable):
		outcome = "not_applicable"
	case err != nil:
		outcome = string(CategoryOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if g.observer != nil {
		g.observer.ObserveRemoteCall(g.Name(), outcome, time.Since(start))
	}
	return verdict, err
}

func (g *Guard) call(ctx context.Context, item map[string]any) (Verdict, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		return Verdict{}, NewError(CategoryCircuitOpen, g.Name(), "circuit open, call skipped", nil)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Verdict{}, NewError(CategoryRateLimited, g.Name(), "rate limit wait", err)
		}
	}

	verdict, err := g.inner.Verify(ctx, item)
	if errors.Is(err, ErrNotApplicable) {
		return verdict, err
	}
	if g.breaker != nil {
		if err != nil {
			if _, change := g.breaker.RecordFailure(); change.Opened && g.logger != nil {
				g.logger.WarnContext(ctx, "remote verifier circuit opened",
					"verifier", g.Name(),
					"error", err,
				)
			}
		} else if _, change := g.breaker.RecordSuccess(); change.Closed && g.logger != nil {
			g.logger.InfoContext(ctx, "remote verifier circuit closed", "verifier", g.Name())
		}
	}
	return verdict, err
}
