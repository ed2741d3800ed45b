package pgsaver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
)

// defaultTableName is the PostgreSQL table used when no custom name is provided.
const defaultTableName = "agentgraph_checkpoints"

// Querier abstracts the pgx query methods needed by PgSaver.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface, allowing
// callers to inject either a connection pool or a single transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgSaver implements [checkpoint.Saver] with PostgreSQL persistence.
// A single instance serves all threads; rows are scoped by thread_id.
// Thread safety is handled by the underlying pgx connection pool; no
// application-level mutex is needed.
type PgSaver struct {
	db Querier
	// rawName is the unsanitized table name, used to derive index names.
	rawName string
	// tableName is the sanitized identifier interpolated into queries.
	tableName string
}

// Compile-time check: PgSaver must implement checkpoint.Saver.
var _ checkpoint.Saver = (*PgSaver)(nil)

// Option configures optional PgSaver behavior.
type Option func(*PgSaver)

// WithTableName overrides the default table name ("agentgraph_checkpoints").
// The name is sanitized via pgx.Identifier to prevent SQL injection,
// since it is interpolated into queries via fmt.Sprintf.
func WithTableName(name string) Option {
	return func(s *PgSaver) {
		s.rawName = name
		s.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// New creates a PostgreSQL-backed checkpoint saver. The db parameter must be
// a pgx-compatible query executor (typically *pgxpool.Pool).
func New(db Querier, opts ...Option) *PgSaver {
	saver := &PgSaver{
		db:        db,
		rawName:   defaultTableName,
		tableName: defaultTableName,
	}
	for _, opt := range opts {
		opt(saver)
	}
	return saver
}

// Put persists a checkpoint. JSONB columns (state, next_nodes, interrupt)
// are serialized with encoding/json; empty next nodes and a missing
// interrupt are stored as SQL NULL.
func (s *PgSaver) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("pgsaver: nil checkpoint")
	}

	stateJSON, err := marshalState(cp.State)
	if err != nil {
		return fmt.Errorf("pgsaver: marshal state: %w", err)
	}
	nextJSON, err := marshalNullableJSON(cp.Next)
	if err != nil {
		return fmt.Errorf("pgsaver: marshal next nodes: %w", err)
	}
	interruptJSON, err := marshalNullableJSON(cp.Interrupt)
	if err != nil {
		return fmt.Errorf("pgsaver: marshal interrupt: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, thread_id, step, state, next_nodes, interrupt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.tableName)

	if _, err := s.db.Exec(ctx, query,
		cp.ID,
		cp.ThreadID,
		cp.Step,
		stateJSON,
		nextJSON,
		interruptJSON,
		cp.CreatedAt,
	); err != nil {
		return fmt.Errorf("pgsaver: put checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint for the thread (ordered by the
// monotonic seq column), or (nil, nil) when the thread has no checkpoints.
func (s *PgSaver) Latest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, thread_id, step, state, next_nodes, interrupt, created_at
		FROM %s WHERE thread_id = $1 ORDER BY seq DESC LIMIT 1`, s.tableName)

	return scanSingleCheckpoint(s.db.QueryRow(ctx, query, threadID))
}

// List returns the thread's full checkpoint history in chronological order.
// The returned slice is never nil.
func (s *PgSaver) List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, thread_id, step, state, next_nodes, interrupt, created_at
		FROM %s WHERE thread_id = $1 ORDER BY seq ASC`, s.tableName)

	rows, err := s.db.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("pgsaver: list checkpoints: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// DeleteThread removes all checkpoints for the thread.
func (s *PgSaver) DeleteThread(ctx context.Context, threadID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = $1`, s.tableName)
	if _, err := s.db.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("pgsaver: delete thread: %w", err)
	}
	return nil
}

// scanCheckpoints iterates over pgx.Rows and returns the decoded checkpoints.
// Returns an empty non-nil slice when no rows are present.
func scanCheckpoints(rows pgx.Rows) ([]*checkpoint.Checkpoint, error) {
	var checkpoints []*checkpoint.Checkpoint

	for rows.Next() {
		var (
			id, threadID  string
			step          int
			stateJSON     []byte
			nextJSON      []byte
			interruptJSON []byte
			createdAt     time.Time
		)

		if err := rows.Scan(&id, &threadID, &step, &stateJSON, &nextJSON, &interruptJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("pgsaver: scan row: %w", err)
		}

		cp, err := buildCheckpoint(id, threadID, step, stateJSON, nextJSON, interruptJSON, createdAt)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgsaver: iterate rows: %w", err)
	}

	if checkpoints == nil {
		return []*checkpoint.Checkpoint{}, nil
	}
	return checkpoints, nil
}

// scanSingleCheckpoint reads exactly one row from a pgx.Row.
// Returns (nil, nil) when the row is empty (pgx.ErrNoRows).
func scanSingleCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		id, threadID  string
		step          int
		stateJSON     []byte
		nextJSON      []byte
		interruptJSON []byte
		createdAt     time.Time
	)

	err := row.Scan(&id, &threadID, &step, &stateJSON, &nextJSON, &interruptJSON, &createdAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pgsaver: scan single row: %w", err)
	}

	return buildCheckpoint(id, threadID, step, stateJSON, nextJSON, interruptJSON, createdAt)
}

// buildCheckpoint assembles a checkpoint from raw column values. Unlike
// message history, a checkpoint with undecodable state cannot be used to
// resume a run, so decode failures are returned as errors rather than
// silently dropped.
func buildCheckpoint(
	id, threadID string,
	step int,
	stateJSON, nextJSON, interruptJSON []byte,
	createdAt time.Time,
) (*checkpoint.Checkpoint, error) {
	cp := &checkpoint.Checkpoint{
		ID:        id,
		ThreadID:  threadID,
		Step:      step,
		State:     map[string]any{},
		CreatedAt: createdAt,
	}

	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
			return nil, fmt.Errorf("pgsaver: decode state: %w", err)
		}
	}
	if len(nextJSON) > 0 {
		if err := json.Unmarshal(nextJSON, &cp.Next); err != nil {
			return nil, fmt.Errorf("pgsaver: decode next nodes: %w", err)
		}
	}
	if len(interruptJSON) > 0 {
		if err := json.Unmarshal(interruptJSON, &cp.Interrupt); err != nil {
			return nil, fmt.Errorf("pgsaver: decode interrupt: %w", err)
		}
	}

	return cp, nil
}

// marshalState serializes the state map, normalizing nil to an empty JSON
// object so the NOT NULL state column always holds a queryable jsonb object.
func marshalState(state map[string]any) ([]byte, error) {
	if state == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(state)
}

// marshalNullableJSON marshals value to JSON, returning nil when there is
// nothing to store. This maps Go zero-values to SQL NULL instead of storing
// empty JSON arrays or objects in JSONB columns.
func marshalNullableJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	case *checkpoint.PendingInterrupt:
		if v == nil {
			return nil, nil
		}
	}
	return json.Marshal(value)
}
