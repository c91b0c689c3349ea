package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/sentinel"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS validation_reports (
	validation_id      TEXT PRIMARY KEY,
	data_type          TEXT NOT NULL,
	level              TEXT NOT NULL,
	overall_status     TEXT NOT NULL,
	overall_score      DOUBLE PRECISION NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ,
	report             JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS validation_reports_finished_at_idx ON validation_reports (finished_at DESC);
`

// PostgresStore keeps the durable report history. The summary columns are
// queryable; the full report is stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the reports table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createReportsTable); err != nil {
		return fmt.Errorf("create validation_reports: %w", err)
	}
	return nil
}

// Save upserts by validation id.
func (s *PostgresStore) Save(ctx context.Context, report *models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	query := `
		INSERT INTO validation_reports (
			validation_id, data_type, level, overall_status,
			overall_score, overall_confidence, started_at, finished_at, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (validation_id) DO UPDATE SET
			overall_status = EXCLUDED.overall_status,
			overall_score = EXCLUDED.overall_score,
			overall_confidence = EXCLUDED.overall_confidence,
			finished_at = EXCLUDED.finished_at,
			report = EXCLUDED.report
	`
	_, err = s.pool.Exec(ctx, query,
		report.ValidationID,
		report.DataType,
		string(report.Level),
		string(report.OverallStatus),
		report.OverallScore,
		report.OverallConfidence,
		report.StartTime,
		report.EndTime,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.ValidationID, err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, validationID string) (*models.Report, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM validation_reports WHERE validation_id = $1`, validationID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find report %s: %w", validationID, err)
	}
	return decodeReport(raw)
}

// Recent returns up to limit reports ordered by finish time, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM validation_reports ORDER BY finished_at DESC NULLS LAST LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []*models.Report{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		report, err := decodeReport(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}
