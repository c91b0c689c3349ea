package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplecheck/internal/platform/config"
	"triplecheck/pkg/platform/sentinel"
)

func TestNew(t *testing.T) {
	t.Run("disabled cache yields no client", func(t *testing.T) {
		client, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "mysql://nope"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis URL")
	})

	t.Run("unreachable server is unavailable", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{
			URL:         "redis://127.0.0.1:1/0",
			DialTimeout: 200 * time.Millisecond,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestApplyOverridesKeepsURLDefaults(t *testing.T) {
	opts, err := redis.ParseURL("redis://cache:6379/2?pool_size=7&dial_timeout=9s")
	require.NoError(t, err)

	applyOverrides(opts, config.RedisConfig{ReadTimeout: time.Second})

	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 9*time.Second, opts.DialTimeout)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 2, opts.DB)
}
