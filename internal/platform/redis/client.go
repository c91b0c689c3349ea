// Package redis opens the connection backing the report cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"triplecheck/internal/platform/config"
	"triplecheck/pkg/platform/sentinel"
)

const healthTimeout = 2 * time.Second

// Client is a connected report cache client plus the cache policy the
// stores built on it should follow.
type Client struct {
	*redis.Client
	reportTTL time.Duration
	keyPrefix string
}

// New connects and pings the cache. A disabled config yields a nil client
// and no error; an unreachable server wraps sentinel.ErrUnavailable.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyOverrides(opts, cfg)

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+healthTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", sentinel.ErrUnavailable, opts.Addr, err)
	}
	return &Client{Client: client, reportTTL: cfg.ReportTTL, keyPrefix: cfg.KeyPrefix}, nil
}

// applyOverrides keeps the URL's own settings wherever cfg leaves a zero.
func applyOverrides(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

func (c *Client) ReportTTL() time.Duration { return c.reportTTL }

func (c *Client) KeyPrefix() string { return c.keyPrefix }

// Health pings under its own short budget so a hung server cannot stall
// the /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}
