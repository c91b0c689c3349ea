package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/sentinel"
)

const (
	defaultKeyPrefix  = "triplecheck"
	defaultReportTTL  = 24 * time.Hour
	defaultRecentSize = 1000
)

// RedisStore caches reports as JSON under their validation id. A sorted set
// scored by end time indexes the most recent ids.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	recentSize int64
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRecentSize bounds the recent-report index.
func WithRecentSize(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.recentSize = int64(n)
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: defaultReportTTL, recentSize: defaultRecentSize}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) reportKey(validationID string) string {
	return s.prefix + ":report:" + validationID
}

func (s *RedisStore) recentKey() string {
	return s.prefix + ":reports:recent"
}

func (s *RedisStore) Save(ctx context.Context, report *models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	score := float64(report.StartTime.UnixMilli())
	if report.EndTime != nil {
		score = float64(report.EndTime.UnixMilli())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.reportKey(report.ValidationID), payload, s.ttl)
	pipe.ZAdd(ctx, s.recentKey(), redis.Z{Score: score, Member: report.ValidationID})
	pipe.ZRemRangeByRank(ctx, s.recentKey(), 0, -s.recentSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save report %s: %w", report.ValidationID, err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, validationID string) (*models.Report, error) {
	raw, err := s.client.Get(ctx, s.reportKey(validationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", validationID, err)
	}
	return decodeReport(raw)
}

// Recent returns up to limit cached reports, newest first. Ids whose report
// has expired are skipped.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = int(s.recentSize)
	}
	ids, err := s.client.ZRevRange(ctx, s.recentKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent reports: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Report{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.reportKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load recent reports: %w", err)
	}
	out := make([]*models.Report, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		report, err := decodeReport([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}

func decodeReport(raw []byte) (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
