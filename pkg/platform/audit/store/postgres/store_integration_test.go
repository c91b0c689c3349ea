//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "triplecheck/pkg/platform/audit"
	"triplecheck/pkg/platform/audit/store/postgres"
	"triplecheck/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, action := range []audit.Action{audit.ActionValidationCompleted, audit.ActionValidationTimedOut} {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Category:     action.Category(),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			ValidationID: "val_1",
			DataType:     "lead",
			Action:       action,
			Decision:     "failed",
		}))
	}
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: base.Add(time.Minute),
		BatchID:   "batch_1",
		Action:    audit.ActionBatchCompleted,
	}))

	byID, err := s.store.ListByValidation(ctx, "val_1")
	s.Require().NoError(err)
	s.Require().Len(byID, 2)
	s.Equal(audit.ActionValidationTimedOut, byID[1].Action)

	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(audit.ActionBatchCompleted, recent[1].Action)
	s.Equal("", recent[1].ValidationID)
}
