package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("GENERATIVE_API_KEY", "")
	t.Setenv("GCP_SA_KEY", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.InDelta(t, 1.0, cfg.Engine.SchemaWeight+cfg.Engine.CrossReferenceWeight+cfg.Engine.ExternalWeight, 1e-9)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 600, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
	assert.Equal(t, 10*time.Second, cfg.Engine.RemoteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Engine.SinkTimeout)
	assert.Equal(t, 10*time.Second, cfg.Kafka.DeliveryTimeout)
	assert.Equal(t, map[string]bool{"GENERATIVE_API_KEY": false, "GCP_SA_KEY": false}, cfg.Engine.Credentials)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TRIPLECHECK_REQUIRED_CREDENTIALS", "GEMINI_API_KEY")
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("TRIPLECHECK_MAX_CONCURRENCY", "3")
	t.Setenv("TRIPLECHECK_PLACEHOLDER_MARKERS", "lorem, ipsum ,")
	t.Setenv("TRIPLECHECK_VERIFY_ENDPOINTS", "registry=https://registry.example/api/lookup,https://other.example/v1")
	t.Setenv("TRIPLECHECK_VERIFY_ENDPOINTS_REGISTRY_API_KEY", "k1")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"GEMINI_API_KEY": true}, cfg.Engine.Credentials)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrency)
	assert.Equal(t, []string{"lorem", "ipsum"}, cfg.Engine.PlaceholderMarkers)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, Endpoint{Name: "registry", URL: "https://registry.example/api/lookup", APIKey: "k1"}, cfg.Endpoints[0])
	assert.Equal(t, "https://other.example/v1", cfg.Endpoints[1].URL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("TRIPLECHECK_MAX_CONCURRENCY", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "TRIPLECHECK_MAX_CONCURRENCY")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := FromEnv()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "weights must sum to one", mutate: func(c *Config) { c.Engine.ExternalWeight = 0.5 }, field: "weights"},
		{name: "threshold out of range", mutate: func(c *Config) { c.Engine.PatternThreshold = 1.5 }, field: "pattern_threshold"},
		{name: "concurrency at least one", mutate: func(c *Config) { c.Engine.MaxConcurrency = 0 }, field: "max_concurrency"},
		{name: "required credential missing", mutate: func(c *Config) {
			c.Engine.RequireCredentials = true
			c.Engine.CredentialOrder = []string{"GEMINI_API_KEY"}
			c.Engine.Credentials = map[string]bool{"GEMINI_API_KEY": false}
		}, field: "credentials"},
		{name: "unbounded sink writes", mutate: func(c *Config) { c.Engine.SinkTimeout = 0 }, field: "sink_timeout"},
		{name: "negative rate limit", mutate: func(c *Config) { c.Server.RateLimit = -1 }, field: "http_rate_limit"},
		{name: "rate limit without window", mutate: func(c *Config) { c.Server.RateWindow = 0 }, field: "http_rate_window"},
		{name: "endpoint without url", mutate: func(c *Config) { c.Endpoints = []Endpoint{{Name: "x"}} }, field: "verify_endpoints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("missing credential is tolerated unless required", func(t *testing.T) {
		cfg := valid()
		cfg.Engine.Credentials = map[string]bool{"GEMINI_API_KEY": false}
		cfg.Engine.CredentialOrder = []string{"GEMINI_API_KEY"}
		assert.NoError(t, cfg.Validate())
	})
}
