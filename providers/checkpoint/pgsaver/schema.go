package pgsaver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// createTableSQL is the DDL statement that creates the checkpoint table.
// Checkpoint ids are generated by the application (checkpoint.New), so the
// primary key has no server-side default.
//
// The seq column (BIGSERIAL) provides monotonic ordering within a thread,
// which stays unambiguous even when a resumed run re-records earlier step
// numbers.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    seq         BIGSERIAL NOT NULL,
    thread_id   TEXT NOT NULL,
    step        BIGINT NOT NULL,
    state       JSONB NOT NULL,
    next_nodes  JSONB,
    interrupt   JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// createThreadSeqIndexSQL creates the primary lookup index: all checkpoints
// for a thread ordered by insertion sequence (used by Latest and List).
const createThreadSeqIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (thread_id, seq)`

// EnsureSchema creates the checkpoint table and its index if they do not
// already exist. This is a convenience helper for development and
// prototyping; production deployments should use proper migration tooling
// (goose, golang-migrate, etc.) to manage schema changes.
func (s *PgSaver) EnsureSchema(ctx context.Context) error {
	tableSQL := fmt.Sprintf(createTableSQL, s.tableName)
	if _, err := s.db.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("pgsaver: create table: %w", err)
	}

	// The index name is sanitized separately from the table name, since the
	// sanitized table name may carry quotes that are invalid mid-identifier.
	indexName := pgx.Identifier{fmt.Sprintf("idx_%s_thread_seq", s.rawName)}.Sanitize()
	indexSQL := fmt.Sprintf(createThreadSeqIndexSQL, indexName, s.tableName)
	if _, err := s.db.Exec(ctx, indexSQL); err != nil {
		return fmt.Errorf("pgsaver: create thread_seq index: %w", err)
	}

	return nil
}
