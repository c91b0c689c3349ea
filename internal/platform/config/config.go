package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, built once in main and passed down.
type Config struct {
	Server     Server
	Log        Log
	Engine     Engine
	Generative Generative
	Endpoints  []Endpoint
	Remote     Remote
	Redis      RedisConfig
	Postgres   PostgresConfig
	Kafka      KafkaConfig
	Audit      AuditConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// RateLimit is the number of /v1 requests one client may make per
	// RateWindow; zero disables inbound throttling.
	RateLimit  int
	RateWindow time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Engine holds the tunables of the validation pipeline.
type Engine struct {
	// SchemaFile is an optional YAML registry; empty uses the built-in types.
	SchemaFile string

	SchemaWeight         float64
	CrossReferenceWeight float64
	ExternalWeight       float64

	ConsistencyWarningThreshold float64
	ExternalWarningThreshold    float64
	PatternThreshold            float64
	PlaceholderMarkers          []string

	// Credentials maps each required credential name to whether the
	// environment supplied a value for it.
	Credentials        map[string]bool
	CredentialOrder    []string
	RequireCredentials bool

	MaxConcurrency int
	BatchTimeout   time.Duration
	RemoteTimeout  time.Duration
	RemoteSample   int
	RemoteWeight   float64
	// SinkTimeout bounds each store, publish and audit write for a report.
	SinkTimeout time.Duration
}

// Generative configures the text-generation verification service. An empty
// APIKey disables it.
type Generative struct {
	APIKey    string
	BaseURL   string
	Model     string
	Threshold float64
}

// Endpoint is one HTTP verification source.
type Endpoint struct {
	Name   string
	URL    string
	APIKey string
}

// Remote guards outbound verifier calls.
type Remote struct {
	RateLimit        float64
	Burst            int
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// RedisConfig configures the report cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReportTTL    time.Duration
	// KeyPrefix namespaces cache keys so deployments can share a server.
	KeyPrefix string
}

// PostgresConfig configures durable report history. An empty DSN disables it.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// KafkaConfig configures verdict publication. No brokers disables it.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	// DeliveryTimeout caps how long a verdict may wait for broker acks.
	DeliveryTimeout time.Duration
}

type AuditConfig struct {
	BufferSize int
}

// Enabled reports whether a Redis URL was configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

func (c PostgresConfig) Enabled() bool { return c.DSN != "" }

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed values are reported by Validate, not silently defaulted.
func FromEnv() (Config, error) {
	p := &envParser{}
	credentialNames := p.list("TRIPLECHECK_REQUIRED_CREDENTIALS", []string{"GENERATIVE_API_KEY", "GCP_SA_KEY"})
	credentials := make(map[string]bool, len(credentialNames))
	for _, name := range credentialNames {
		credentials[name] = strings.TrimSpace(os.Getenv(name)) != ""
	}

	cfg := Config{
		Server: Server{
			Addr:            p.str("TRIPLECHECK_ADDR", ":8080"),
			ShutdownTimeout: p.duration("TRIPLECHECK_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       p.integer("TRIPLECHECK_HTTP_RATE_LIMIT", 600),
			RateWindow:      p.duration("TRIPLECHECK_HTTP_RATE_WINDOW", time.Minute),
		},
		Log: Log{
			Level:  p.str("TRIPLECHECK_LOG_LEVEL", "info"),
			Format: p.str("TRIPLECHECK_LOG_FORMAT", "json"),
		},
		Engine: Engine{
			SchemaFile:                  p.str("TRIPLECHECK_SCHEMA_FILE", ""),
			SchemaWeight:                p.float("TRIPLECHECK_WEIGHT_SCHEMA", 0.40),
			CrossReferenceWeight:        p.float("TRIPLECHECK_WEIGHT_CROSS_REFERENCE", 0.35),
			ExternalWeight:              p.float("TRIPLECHECK_WEIGHT_EXTERNAL", 0.25),
			ConsistencyWarningThreshold: p.float("TRIPLECHECK_CONSISTENCY_WARNING_THRESHOLD", 0.8),
			ExternalWarningThreshold:    p.float("TRIPLECHECK_EXTERNAL_WARNING_THRESHOLD", 0.5),
			PatternThreshold:            p.float("TRIPLECHECK_PATTERN_THRESHOLD", 0.9),
			PlaceholderMarkers:          p.list("TRIPLECHECK_PLACEHOLDER_MARKERS", []string{"test", "dummy", "fake", "xxx", "placeholder"}),
			Credentials:                 credentials,
			CredentialOrder:             credentialNames,
			RequireCredentials:          p.boolean("TRIPLECHECK_REQUIRE_CREDENTIALS", false),
			MaxConcurrency:              p.integer("TRIPLECHECK_MAX_CONCURRENCY", 8),
			BatchTimeout:                p.duration("TRIPLECHECK_BATCH_TIMEOUT", 2*time.Minute),
			RemoteTimeout:               p.duration("TRIPLECHECK_REMOTE_TIMEOUT", 10*time.Second),
			RemoteSample:                p.integer("TRIPLECHECK_REMOTE_SAMPLE", 5),
			RemoteWeight:                p.float("TRIPLECHECK_REMOTE_WEIGHT", 0.3),
			SinkTimeout:                 p.duration("TRIPLECHECK_SINK_TIMEOUT", 5*time.Second),
		},
		Generative: Generative{
			APIKey:    strings.TrimSpace(os.Getenv("GENERATIVE_API_KEY")),
			BaseURL:   p.str("TRIPLECHECK_GENERATIVE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Model:     p.str("TRIPLECHECK_GENERATIVE_MODEL", "google/gemini-2.0-flash-001"),
			Threshold: p.float("TRIPLECHECK_GENERATIVE_THRESHOLD", 0.7),
		},
		Endpoints: p.endpoints("TRIPLECHECK_VERIFY_ENDPOINTS"),
		Remote: Remote{
			RateLimit:        p.float("TRIPLECHECK_REMOTE_RPS", 5),
			Burst:            p.integer("TRIPLECHECK_REMOTE_BURST", 5),
			FailureThreshold: p.integer("TRIPLECHECK_BREAKER_FAILURES", 5),
			SuccessThreshold: p.integer("TRIPLECHECK_BREAKER_SUCCESSES", 2),
			Cooldown:         p.duration("TRIPLECHECK_BREAKER_COOLDOWN", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ReportTTL:    p.duration("TRIPLECHECK_REPORT_TTL", 24*time.Hour),
			KeyPrefix:    p.str("REDIS_KEY_PREFIX", "triplecheck"),
		},
		Postgres: PostgresConfig{
			DSN:      p.str("DATABASE_URL", ""),
			MaxConns: int32(p.integer("DATABASE_MAX_CONNS", 10)),
		},
		Kafka: KafkaConfig{
			Brokers:         p.list("KAFKA_BROKERS", nil),
			Topic:           p.str("TRIPLECHECK_VERDICT_TOPIC", "triplecheck.verdicts"),
			ClientID:        p.str("KAFKA_CLIENT_ID", "triplecheck"),
			DeliveryTimeout: p.duration("KAFKA_DELIVERY_TIMEOUT", 10*time.Second),
		},
		Audit: AuditConfig{
			BufferSize: p.integer("TRIPLECHECK_AUDIT_BUFFER", 256),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field invariants. Every problem is reported, joined.
func (c Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, Invalid(field, format, args...))
	}

	e := c.Engine
	weights := []float64{e.SchemaWeight, e.CrossReferenceWeight, e.ExternalWeight}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			add("weights", "weights must be non-negative, got %v", weights)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		add("weights", "weights must sum to 1, got %.4f", sum)
	}
	for field, v := range map[string]float64{
		"consistency_warning_threshold": e.ConsistencyWarningThreshold,
		"external_warning_threshold":    e.ExternalWarningThreshold,
		"pattern_threshold":             e.PatternThreshold,
		"remote_weight":                 e.RemoteWeight,
		"generative_threshold":          c.Generative.Threshold,
	} {
		if v < 0 || v > 1 {
			add(field, "must be within [0, 1], got %v", v)
		}
	}
	if c.Server.RateLimit < 0 {
		add("http_rate_limit", "must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		add("http_rate_window", "must be positive when rate limiting is enabled")
	}
	if e.MaxConcurrency < 1 {
		add("max_concurrency", "must be at least 1, got %d", e.MaxConcurrency)
	}
	if e.RemoteTimeout <= 0 {
		add("remote_timeout", "must be positive")
	}
	if e.BatchTimeout < 0 {
		add("batch_timeout", "must not be negative")
	}
	if e.SinkTimeout <= 0 {
		add("sink_timeout", "must be positive")
	}
	if e.RequireCredentials {
		for _, name := range e.CredentialOrder {
			if !e.Credentials[name] {
				add("credentials", "required credential %s is not set", name)
			}
		}
	}
	for _, ep := range c.Endpoints {
		if ep.URL == "" {
			add("verify_endpoints", "endpoint %q has no url", ep.Name)
		}
	}
	if c.Kafka.Enabled() && c.Kafka.DeliveryTimeout <= 0 {
		add("kafka_delivery_timeout", "must be positive when brokers are configured")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		add("kafka_topic", "required when brokers are configured")
	}
	return errors.Join(errs...)
}

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError is the only fatal error class of the engine: it is
// returned at construction and never during validation.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Invalid builds a ConfigurationError for field.
func Invalid(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type envParser struct {
	errs []error
}

func (p *envParser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *envParser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, Invalid(key, "not a number: %q", raw))
		return def
	}
	return v
}

func (p *envParser) integer(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, Invalid(key, "not an integer: %q", raw))
		return def
	}
	return v
}

func (p *envParser) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, Invalid(key, "not a boolean: %q", raw))
		return def
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, Invalid(key, "not a duration: %q", raw))
		return def
	}
	return v
}

func (p *envParser) list(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// endpoints parses "name=url,name=url". A bare url takes its host as name.
// Keys are read from <KEY>_<NAME>_API_KEY, upper-cased.
func (p *envParser) endpoints(key string) []Endpoint {
	var out []Endpoint
	for _, entry := range p.list(key, nil) {
		ep := Endpoint{URL: entry}
		if name, url, ok := strings.Cut(entry, "="); ok {
			ep.Name, ep.URL = strings.TrimSpace(name), strings.TrimSpace(url)
		}
		if ep.Name != "" {
			envName := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(ep.Name))
			ep.APIKey = strings.TrimSpace(os.Getenv(key + "_" + envName + "_API_KEY"))
		}
		out = append(out, ep)
	}
	return out
}
