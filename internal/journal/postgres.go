package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore writes entries to the executions table.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

func (s *PGStore) Migrate(ctx context.Context) error {
	const stmt = `
        CREATE TABLE IF NOT EXISTS executions (
            id UUID PRIMARY KEY,
            kind TEXT NOT NULL,
            name TEXT NOT NULL,
            job_id TEXT NOT NULL DEFAULT '',
            origin TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            enqueued_at TIMESTAMPTZ
        );`
	for _, q := range []string{
		stmt,
		`ALTER TABLE executions ADD COLUMN IF NOT EXISTS enqueued_at TIMESTAMPTZ;`,
		`CREATE INDEX IF NOT EXISTS executions_name_started_idx ON executions (name, started_at DESC);`,
	} {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Record(ctx context.Context, entry Entry) error {
	const query = `
        INSERT INTO executions (id, kind, name, job_id, origin, status, error, started_at, finished_at, enqueued_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`
	_, err := s.db.Exec(ctx, query,
		entry.ID,
		string(entry.Kind),
		entry.Name,
		entry.JobID,
		entry.Origin,
		entry.Status,
		entry.Error,
		entry.StartedAt,
		entry.FinishedAt,
		nullTime(entry.EnqueuedAt),
	)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
