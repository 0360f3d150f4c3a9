package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const defaultReadingTable = "manufacturing_analytics"

// ReadingRepository is a Postgres sink for scored readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the readings table and its lookup index if missing.
func (r *ReadingRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	record_id UUID NOT NULL UNIQUE,
	machine_id INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	mode TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	vibration DOUBLE PRECISION NOT NULL,
	efficiency_score DOUBLE PRECISION NOT NULL,
	efficiency_level TEXT NOT NULL DEFAULT 'Unknown',
	is_anomaly BOOLEAN NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_machine_idx ON %s (machine_id, id DESC)`, r.table, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reading repo: ensure schema: %w", err)
		}
	}
	return nil
}

// Store inserts one reading. A repeated record id is ignored.
func (r *ReadingRepository) Store(ctx context.Context, reading telemetry.ScoredReading) error {
	return r.StoreBatch(ctx, []telemetry.ScoredReading{reading})
}

// StoreBatch inserts readings in order inside one transaction.
func (r *ReadingRepository) StoreBatch(ctx context.Context, readings []telemetry.ScoredReading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	record_id,
	machine_id,
	timestamp,
	mode,
	temperature,
	vibration,
	efficiency_score,
	efficiency_level,
	is_anomaly,
	processed_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (record_id) DO NOTHING`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if reading.RecordID == "" || reading.MachineID <= 0 {
			_ = tx.Rollback()
			return errors.New("reading repo: invalid reading")
		}
		level := reading.EfficiencyLevel
		if level == "" {
			level = telemetry.DefaultEfficiencyLevel
		}
		processedAt := reading.ProcessedAt
		if processedAt.IsZero() {
			processedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(
			ctx,
			reading.RecordID,
			reading.MachineID,
			reading.Timestamp,
			string(reading.Mode),
			reading.Temperature,
			reading.Vibration,
			reading.EfficiencyScore,
			level,
			reading.IsAnomaly,
			processedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListRecent returns up to limit readings of a machine, newest first.
func (r *ReadingRepository) ListRecent(ctx context.Context, machineID, limit int) ([]telemetry.ScoredReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT record_id::text, machine_id, timestamp, mode, temperature, vibration,
	efficiency_score, efficiency_level, is_anomaly, processed_at
FROM %s
WHERE machine_id = $1
ORDER BY id DESC
LIMIT $2`, r.table)

	rows, err := r.db.QueryContext(ctx, query, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]telemetry.ScoredReading, 0, limit)
	for rows.Next() {
		var (
			reading telemetry.ScoredReading
			mode    string
		)
		if err := rows.Scan(
			&reading.RecordID,
			&reading.MachineID,
			&reading.Timestamp,
			&mode,
			&reading.Temperature,
			&reading.Vibration,
			&reading.EfficiencyScore,
			&reading.EfficiencyLevel,
			&reading.IsAnomaly,
			&reading.ProcessedAt,
		); err != nil {
			return nil, err
		}
		reading.Mode = telemetry.ParseMode(mode)
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
