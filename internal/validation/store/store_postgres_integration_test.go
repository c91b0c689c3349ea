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

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "validation_reports"))
}

func (s *PostgresStoreSuite) TestSaveIsUpsert() {
	ctx := context.Background()
	end := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	report := finishedReport("val_pg", end)
	s.Require().NoError(s.store.Save(ctx, report))

	report.OverallStatus = models.StatusFailed
	report.OverallScore = 0.4
	s.Require().NoError(s.store.Save(ctx, report))

	got, err := s.store.FindByID(ctx, "val_pg")
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.OverallStatus)
	s.InDelta(0.4, got.OverallScore, 1e-9)
	s.Equal(models.LevelStandard, got.Level)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), "val_none")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecentOrdersByFinishTime() {
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, i := range []int{2, 0, 1} {
		s.Require().NoError(s.store.Save(ctx, finishedReport(fmt.Sprintf("val_%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := s.store.Recent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("val_2", recent[0].ValidationID)
	s.Equal("val_1", recent[1].ValidationID)
}
