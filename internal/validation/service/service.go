// Package service runs the three-stage validation pipeline for single
// submissions and for bounded-concurrency batches.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"triplecheck/internal/platform/config"
	"triplecheck/internal/validation/consensus"
	"triplecheck/internal/validation/metrics"
	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/schema"
	"triplecheck/internal/validation/stages"
	"triplecheck/internal/validation/store"
	"triplecheck/internal/verification/remote"
	audit "triplecheck/pkg/platform/audit"
)

const tracerName = "triplecheck/validation/service"

// ReportStore persists finalized reports.
type ReportStore interface {
	Save(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, validationID string) (*models.Report, error)
	Recent(ctx context.Context, limit int) ([]*models.Report, error)
}

// VerdictPublisher forwards finalized reports to downstream consumers.
type VerdictPublisher interface {
	Publish(ctx context.Context, report *models.Report) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Settings is everything the engine needs. It is built by the caller; the
// engine never reads the environment.
type Settings struct {
	Registry    *schema.Registry
	Weights     consensus.Weights
	Consistency stages.ConsistencyConfig
	External    stages.ExternalConfig
	Verifiers   []remote.Verifier

	MaxConcurrency int
	// BatchTimeout bounds a whole batch; zero means no deadline.
	BatchTimeout time.Duration
	// SinkTimeout bounds each store, publish and audit write. Zero uses
	// the default.
	SinkTimeout time.Duration
	// RequireCredentials turns a missing credential into a construction
	// error instead of a degraded stage 3.
	RequireCredentials bool
}

// DefaultSettings returns the built-in schema registry and stage defaults.
func DefaultSettings() Settings {
	return Settings{
		Registry:       schema.Default(),
		Weights:        consensus.DefaultWeights(),
		Consistency:    stages.DefaultConsistencyConfig(),
		External:       stages.DefaultExternalConfig(),
		MaxConcurrency: 8,
		BatchTimeout:   2 * time.Minute,
		SinkTimeout:    defaultSinkTimeout,
	}
}

const defaultSinkTimeout = 5 * time.Second

// Service is the validation engine.
type Service struct {
	registry       *schema.Registry
	stages         [3]stages.Stage
	aggregator     *consensus.Aggregator
	maxConcurrency int
	batchTimeout   time.Duration
	sinkTimeout    time.Duration

	store          ReportStore
	publisher      VerdictPublisher
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	clock          func() time.Time

	tally tally
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStore replaces the default in-memory report store.
func WithStore(st ReportStore) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

func WithPublisher(p VerdictPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

// WithClock overrides time.Now for report and stage timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New validates settings and builds the engine. Every returned error is a
// *config.ConfigurationError.
func New(settings Settings, opts ...Option) (*Service, error) {
	if settings.Registry == nil {
		return nil, config.Invalid("registry", "schema registry is required")
	}
	aggregator, err := consensus.New(settings.Weights)
	if err != nil {
		return nil, config.Invalid("weights", "%v", err)
	}
	if settings.MaxConcurrency < 1 {
		return nil, config.Invalid("max_concurrency", "must be at least 1, got %d", settings.MaxConcurrency)
	}
	if settings.BatchTimeout < 0 {
		return nil, config.Invalid("batch_timeout", "must not be negative")
	}
	if settings.SinkTimeout < 0 {
		return nil, config.Invalid("sink_timeout", "must not be negative")
	}
	sinkTimeout := settings.SinkTimeout
	if sinkTimeout == 0 {
		sinkTimeout = defaultSinkTimeout
	}
	if err := checkThresholds(settings); err != nil {
		return nil, err
	}
	if settings.RequireCredentials {
		for _, c := range settings.External.Credentials {
			if !c.Present {
				return nil, config.Invalid("credentials", "required credential %s is not set", c.Name)
			}
		}
	}

	s := &Service{
		registry:       settings.Registry,
		aggregator:     aggregator,
		maxConcurrency: settings.MaxConcurrency,
		batchTimeout:   settings.BatchTimeout,
		sinkTimeout:    sinkTimeout,
		store:          store.NewMemoryStore(0),
		logger:         slog.Default(),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	stageClock := stages.Clock(s.clock)
	s.stages = [3]stages.Stage{
		stages.NewStructural(stageClock),
		stages.NewConsistency(settings.Consistency, stageClock),
		stages.NewExternal(settings.External, settings.Verifiers, stageClock),
	}
	return s, nil
}

func checkThresholds(settings Settings) error {
	for field, v := range map[string]float64{
		"consistency_warning_threshold": settings.Consistency.WarningThreshold,
		"external_warning_threshold":    settings.External.WarningThreshold,
		"pattern_threshold":             settings.External.PatternThreshold,
		"remote_weight":                 settings.External.RemoteWeight,
	} {
		if v < 0 || v > 1 {
			return config.Invalid(field, "must be within [0, 1], got %v", v)
		}
	}
	if settings.Consistency.MinRatio <= 0 || settings.Consistency.MaxRatio < settings.Consistency.MinRatio {
		return config.Invalid("ratio_band", "invalid band [%v, %v]",
			settings.Consistency.MinRatio, settings.Consistency.MaxRatio)
	}
	return nil
}

// Registry exposes the schema registry the engine validates against.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Validate runs the three stages in order and returns the finalized report.
// It never fails: every problem is encoded in the report.
func (s *Service) Validate(ctx context.Context, sub models.Submission) *models.Report {
	report, action := s.evaluateSafely(ctx, sub, "")
	s.record(ctx, report, action, "")
	return report
}

// evaluate is the pure pipeline: no persistence, publication or counting.
func (s *Service) evaluate(ctx context.Context, sub models.Submission) *models.Report {
	start := s.clock()
	defer s.metrics.TrackInFlight()()

	level := sub.Level
	if level == "" {
		level = models.LevelStrict
	}
	report := models.NewReport(models.NewValidationID(sub.Payload(), start), sub.DataType, level, start)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "validation.validate", trace.WithAttributes(
		attribute.String("validation_id", report.ValidationID),
		attribute.String("data_type", sub.DataType),
		attribute.String("level", string(level)),
		attribute.Int("items", len(sub.Items)),
	))
	defer span.End()

	def, exact := s.registry.Resolve(sub.DataType)
	if !exact {
		s.logger.WarnContext(ctx, "unknown data type, using fallback schema",
			"data_type", sub.DataType,
			"fallback", def.Type,
		)
	}
	in := stages.Input{DataType: sub.DataType, Items: sub.Items, Schema: def, ExactSchema: exact}

	var results [3]*models.StepResult
	for i, stage := range s.stages {
		results[i] = s.runStage(ctx, stage, in)
	}
	s.aggregator.Finalize(report, results[0], results[1], results[2], s.clock())

	span.SetAttributes(
		attribute.String("status", string(report.OverallStatus)),
		attribute.Float64("score", report.OverallScore),
	)
	s.metrics.ObserveValidateLatency(report.Duration())
	return report
}

// runStage contains a stage panic: the stage is recorded as failed and the
// pipeline continues.
func (s *Service) runStage(ctx context.Context, stage stages.Stage, in stages.Input) (result *models.StepResult) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "validation.stage",
		trace.WithAttributes(attribute.String("stage", stage.Name())))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "validation stage panicked",
				"stage", stage.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = consensus.FailedStep(stage.Name(), fmt.Sprintf("stage aborted: %v", r), s.clock())
		}
		span.SetAttributes(attribute.String("status", string(result.Status)))
		s.metrics.ObserveStage(stage.Name(), string(result.Status), time.Since(start))
	}()

	res := stage.Validate(ctx, in)
	return &res
}

// record counts, persists, publishes and audits a finalized report. Sink
// failures are logged; they never change the verdict. Writes survive the
// caller's cancellation but are bounded by the sink timeout.
func (s *Service) record(ctx context.Context, report *models.Report, action audit.Action, batchID string) {
	ctx, cancel := s.sinkContext(ctx)
	defer cancel()

	s.tally.add(report.OverallStatus)
	s.metrics.IncrementReport(string(report.OverallStatus), report.DataType)

	s.logger.InfoContext(ctx, "validation completed",
		"validation_id", report.ValidationID,
		"data_type", report.DataType,
		"status", report.OverallStatus,
		"score", report.OverallScore,
		"confidence", report.OverallConfidence,
		"meets_level", report.MeetsLevel(),
		"duration", report.Duration(),
	)

	if err := s.store.Save(ctx, report); err != nil {
		s.logger.ErrorContext(ctx, "failed to save report", "validation_id", report.ValidationID, "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, report); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish verdict", "validation_id", report.ValidationID, "error", err)
		}
	}
	if s.auditPublisher != nil {
		event := audit.Event{
			ValidationID: report.ValidationID,
			BatchID:      batchID,
			DataType:     report.DataType,
			Action:       action,
			Decision:     string(report.OverallStatus),
			Score:        report.OverallScore,
		}
		if action != audit.ActionValidationCompleted {
			event.Reason = firstError(report)
		}
		if err := s.auditPublisher.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "validation_id", report.ValidationID, "error", err)
		}
	}
}

func (s *Service) sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
}

// Report looks up a stored report by validation id.
func (s *Service) Report(ctx context.Context, validationID string) (*models.Report, error) {
	return s.store.FindByID(ctx, validationID)
}

// Recent lists stored reports, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.Report, error) {
	return s.store.Recent(ctx, limit)
}

func firstError(r *models.Report) string {
	for _, step := range r.Steps() {
		if step != nil && len(step.Errors) > 0 {
			return step.Errors[0]
		}
	}
	return ""
}

// Stats are process-lifetime verdict counters.
type Stats struct {
	Total    int64   `json:"total"`
	Passed   int64   `json:"passed"`
	Failed   int64   `json:"failed"`
	Warning  int64   `json:"warning"`
	PassRate float64 `json:"passRate"`
}

type tally struct {
	passed, failed, warning atomic.Int64
}

func (t *tally) add(status models.Status) {
	switch status {
	case models.StatusPassed:
		t.passed.Add(1)
	case models.StatusFailed:
		t.failed.Add(1)
	default:
		t.warning.Add(1)
	}
}

func (s *Service) Stats() Stats {
	st := Stats{
		Passed:  s.tally.passed.Load(),
		Failed:  s.tally.failed.Load(),
		Warning: s.tally.warning.Load(),
	}
	st.Total = st.Passed + st.Failed + st.Warning
	if st.Total > 0 {
		st.PassRate = float64(st.Passed) / float64(st.Total)
	}
	return st
}
