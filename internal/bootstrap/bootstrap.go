// Package bootstrap turns process configuration into the validation engine's
// settings and its persistence and publication sinks. It is shared by the
// HTTP server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"triplecheck/internal/platform/config"
	"triplecheck/internal/platform/postgres"
	"triplecheck/internal/platform/redis"
	"triplecheck/internal/validation/consensus"
	"triplecheck/internal/validation/publisher"
	"triplecheck/internal/validation/schema"
	"triplecheck/internal/validation/service"
	"triplecheck/internal/validation/stages"
	"triplecheck/internal/validation/store"
	"triplecheck/internal/verification/remote"
	audit "triplecheck/pkg/platform/audit"
	auditpublisher "triplecheck/pkg/platform/audit/publisher"
	auditmemory "triplecheck/pkg/platform/audit/store/memory"
	auditpostgres "triplecheck/pkg/platform/audit/store/postgres"
	"triplecheck/pkg/platform/circuit"
)

// EngineSettings maps cfg onto service.Settings, loading the schema registry
// file when one is configured.
func EngineSettings(cfg config.Config, logger *slog.Logger, observer remote.Observer) (service.Settings, error) {
	registry := schema.Default()
	if cfg.Engine.SchemaFile != "" {
		loaded, err := schema.Load(cfg.Engine.SchemaFile)
		if err != nil {
			return service.Settings{}, config.Invalid("schema_file", "%v", err)
		}
		registry = loaded
	}

	consistency := stages.DefaultConsistencyConfig()
	consistency.WarningThreshold = cfg.Engine.ConsistencyWarningThreshold

	external := stages.DefaultExternalConfig()
	external.Markers = cfg.Engine.PlaceholderMarkers
	external.PatternThreshold = cfg.Engine.PatternThreshold
	external.WarningThreshold = cfg.Engine.ExternalWarningThreshold
	external.RemoteSample = cfg.Engine.RemoteSample
	external.RemoteTimeout = cfg.Engine.RemoteTimeout
	external.RemoteWeight = cfg.Engine.RemoteWeight
	external.Credentials = make([]stages.Credential, 0, len(cfg.Engine.CredentialOrder))
	for _, name := range cfg.Engine.CredentialOrder {
		external.Credentials = append(external.Credentials, stages.Credential{Name: name, Present: cfg.Engine.Credentials[name]})
	}

	return service.Settings{
		Registry: registry,
		Weights: consensus.Weights{
			Schema:         cfg.Engine.SchemaWeight,
			CrossReference: cfg.Engine.CrossReferenceWeight,
			External:       cfg.Engine.ExternalWeight,
		},
		Consistency:        consistency,
		External:           external,
		Verifiers:          Verifiers(cfg, logger, observer),
		MaxConcurrency:     cfg.Engine.MaxConcurrency,
		BatchTimeout:       cfg.Engine.BatchTimeout,
		SinkTimeout:        cfg.Engine.SinkTimeout,
		RequireCredentials: cfg.Engine.RequireCredentials,
	}, nil
}

// Verifiers builds the configured remote verifiers, each behind its own rate
// limiter and circuit breaker. The generative service is skipped without an
// API key.
func Verifiers(cfg config.Config, logger *slog.Logger, observer remote.Observer) []remote.Verifier {
	var verifiers []remote.Verifier
	if cfg.Generative.APIKey != "" {
		verifiers = append(verifiers, guard(remote.NewGenerativeVerifier(remote.GenerativeConfig{
			APIKey:    cfg.Generative.APIKey,
			BaseURL:   cfg.Generative.BaseURL,
			Model:     cfg.Generative.Model,
			Timeout:   cfg.Engine.RemoteTimeout,
			Threshold: cfg.Generative.Threshold,
		}), cfg.Remote, logger, observer))
	}
	for _, ep := range cfg.Endpoints {
		verifiers = append(verifiers, guard(remote.NewEndpointVerifier(remote.EndpointConfig{
			Name:    ep.Name,
			URL:     ep.URL,
			APIKey:  ep.APIKey,
			Timeout: cfg.Engine.RemoteTimeout,
		}, nil), cfg.Remote, logger, observer))
	}
	return verifiers
}

func guard(v remote.Verifier, rc config.Remote, logger *slog.Logger, observer remote.Observer) remote.Verifier {
	breaker := circuit.New(v.Name(),
		circuit.WithFailureThreshold(rc.FailureThreshold),
		circuit.WithSuccessThreshold(rc.SuccessThreshold),
		circuit.WithCooldown(rc.Cooldown),
	)
	return remote.NewGuard(v,
		remote.WithRateLimit(rc.RateLimit, rc.Burst),
		remote.WithBreaker(breaker),
		remote.WithGuardLogger(logger),
		remote.WithObserver(observer),
	)
}

// Sinks are the report store, verdict publisher and audit trail of one
// process, plus the health checks of whatever backends they opened.
type Sinks struct {
	Store     service.ReportStore
	Publisher service.VerdictPublisher
	Audit     *auditpublisher.Publisher
	Checks    map[string]func(ctx context.Context) error

	closers []func()
}

// OpenSinks connects the configured backends. Reports always go to a bounded
// memory store; Redis and Postgres are chained behind it when configured.
func OpenSinks(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Sinks, error) {
	s := &Sinks{Checks: map[string]func(ctx context.Context) error{}}
	backends := []store.Backend{store.NewMemoryStore(0)}
	var auditStore audit.Store = auditmemory.NewInMemoryStore()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		s.closers = append(s.closers, func() { _ = redisClient.Close() })
		s.Checks["redis"] = redisClient.Health
		backends = append(backends, store.NewRedisStore(redisClient.Client,
			store.WithTTL(redisClient.ReportTTL()),
			store.WithKeyPrefix(redisClient.KeyPrefix()),
		))
		logger.InfoContext(ctx, "redis report cache enabled")
	}

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pool != nil {
		s.closers = append(s.closers, pool.Close)
		s.Checks["postgres"] = pool.Ping
		reports := store.NewPostgresStore(pool)
		if err := reports.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("prepare report schema: %w", err)
		}
		events := auditpostgres.New(pool)
		if err := events.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("prepare audit schema: %w", err)
		}
		backends = append(backends, reports)
		auditStore = events
		logger.InfoContext(ctx, "postgres report history enabled")
	}
	s.Store = store.NewChain(backends...)

	if cfg.Kafka.Enabled() {
		kafka, err := publisher.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		s.closers = append(s.closers, kafka.Close)
		s.Publisher = kafka
		logger.InfoContext(ctx, "verdict publication enabled", "topic", cfg.Kafka.Topic)
	}

	s.Audit = auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		auditpublisher.WithLogger(logger),
	)
	return s, nil
}

// Close drains the audit buffer, then releases backends in reverse order.
func (s *Sinks) Close() {
	if s.Audit != nil {
		s.Audit.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
