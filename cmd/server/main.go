package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"triplecheck/internal/bootstrap"
	httpapi "triplecheck/internal/http"
	"triplecheck/internal/platform/config"
	"triplecheck/internal/platform/httpserver"
	"triplecheck/internal/platform/logger"
	httpmetrics "triplecheck/internal/platform/metrics"
	"triplecheck/internal/ratelimit"
	"triplecheck/internal/validation/handler"
	"triplecheck/internal/validation/metrics"
	"triplecheck/internal/validation/service"
)

var version = "dev"

// main wires configuration, sinks and the engine, serves HTTP and shuts
// down gracefully on SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "triplecheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineMetrics := metrics.New()
	settings, err := bootstrap.EngineSettings(cfg, log, engineMetrics)
	if err != nil {
		return err
	}
	for _, c := range settings.External.Credentials {
		if !c.Present {
			log.Warn("credential not configured; external verification will degrade", "credential", c.Name)
		}
	}

	sinks, err := bootstrap.OpenSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	svc, err := service.New(settings,
		service.WithLogger(log),
		service.WithMetrics(engineMetrics),
		service.WithStore(sinks.Store),
		service.WithPublisher(sinks.Publisher),
		service.WithAuditPublisher(sinks.Audit),
	)
	if err != nil {
		return err
	}

	checks := make(map[string]httpapi.HealthCheck, len(sinks.Checks))
	for name, check := range sinks.Checks {
		checks[name] = check
	}
	var handlerOpts []handler.Option
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.NewMiddleware(ratelimit.NewSlidingWindow(cfg.Server.RateLimit, cfg.Server.RateWindow), log)
		go limiter.RunSweeper(ctx, cfg.Server.RateWindow)
		handlerOpts = append(handlerOpts, handler.WithRateLimit(limiter.Handler))
	}
	requestTimeout := cfg.Engine.BatchTimeout + cfg.Engine.RemoteTimeout
	router := httpapi.NewRouter(httpapi.Options{
		Logger:  log,
		Version: version,
		Checks:  checks,
	}, handler.New(svc, log, httpmetrics.New(), requestTimeout, handlerOpts...))

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Engine.BatchTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting triplecheck",
			"addr", cfg.Server.Addr,
			"version", version,
			"data_types", svc.Registry().Types(),
			"verifiers", len(settings.Verifiers),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
