package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "triplecheck/pkg/platform/audit"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_events (
	id            UUID PRIMARY KEY,
	category      TEXT NOT NULL,
	action        TEXT NOT NULL,
	validation_id TEXT,
	batch_id      TEXT,
	data_type     TEXT,
	decision      TEXT,
	score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason        TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_validation_idx ON audit_events (validation_id);
`

// Store implements audit.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("create audit_events: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (id, category, action, validation_id, batch_id, data_type, decision, score, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.New(),
		string(event.Category),
		string(event.Action),
		event.ValidationID,
		event.BatchID,
		event.DataType,
		event.Decision,
		event.Score,
		event.Reason,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByValidation(ctx context.Context, validationID string) ([]audit.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvents+` WHERE validation_id = $1 ORDER BY created_at`, validationID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collectEvents(rows)
}

// ListRecent returns the last limit events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM (`+selectEvents+` ORDER BY created_at DESC LIMIT $1) recent ORDER BY created_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collectEvents(rows)
}

const selectEvents = `SELECT category, action, validation_id, batch_id, data_type, decision, score, reason, created_at FROM audit_events`

func collectEvents(rows pgx.Rows) ([]audit.Event, error) {
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var e audit.Event
		var category, action string
		var validationID, batchID, dataType, decision, reason *string
		if err := row.Scan(&category, &action, &validationID, &batchID, &dataType, &decision, &e.Score, &reason, &e.Timestamp); err != nil {
			return e, err
		}
		e.Category = audit.EventCategory(category)
		e.Action = audit.Action(action)
		e.ValidationID = deref(validationID)
		e.BatchID = deref(batchID)
		e.DataType = deref(dataType)
		e.Decision = deref(decision)
		e.Reason = deref(reason)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
