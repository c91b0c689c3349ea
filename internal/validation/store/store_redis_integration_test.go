//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/store"
	"triplecheck/pkg/platform/sentinel"
	"triplecheck/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = store.NewRedisStore(s.redis.Client, store.WithTTL(time.Minute), store.WithRecentSize(3))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func finishedReport(id string, end time.Time) *models.Report {
	r := models.NewReport(id, "property", models.LevelStandard, end.Add(-time.Second))
	r.Step1 = &models.StepResult{Step: models.StepSchema, Status: models.StatusPassed, Score: 1, Confidence: 1,
		Errors: []string{}, Warnings: []string{}, Details: map[string]any{"total_items": 1}, Timestamp: end}
	r.OverallStatus = models.StatusWarning
	r.OverallScore = 0.875
	r.EndTime = &end
	return r
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	end := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Save(ctx, finishedReport("val_rt", end)))

	got, err := s.store.FindByID(ctx, "val_rt")
	s.Require().NoError(err)
	s.Equal(models.StatusWarning, got.OverallStatus)
	s.InDelta(0.875, got.OverallScore, 1e-9)
	s.Equal(float64(1), got.Step1.Details["total_items"])
	s.True(got.EndTime.Equal(end))

	ttl, err := s.redis.Client.TTL(ctx, "triplecheck:report:val_rt").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), "val_none")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestRecentIsBounded() {
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		s.Require().NoError(s.store.Save(ctx, finishedReport(fmt.Sprintf("val_%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := s.store.Recent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 3)
	s.Equal("val_4", recent[0].ValidationID)
	s.Equal("val_2", recent[2].ValidationID)
}
