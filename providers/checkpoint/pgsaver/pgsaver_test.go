package pgsaver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
)

// TestNew_Defaults verifies that New applies the default table name.
func TestNew_Defaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)
	if saver.tableName != defaultTableName {
		t.Fatalf("expected default table name %q, got %q", defaultTableName, saver.tableName)
	}
}

// TestNew_WithTableName verifies that WithTableName overrides the default
// and sanitizes the name via pgx.Identifier.
func TestNew_WithTableName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock, WithTableName("custom_checkpoints"))

	// pgx.Identifier.Sanitize() quotes the name: "custom_checkpoints"
	expected := `"custom_checkpoints"`
	if saver.tableName != expected {
		t.Fatalf("expected table name %q, got %q", expected, saver.tableName)
	}
	if saver.rawName != "custom_checkpoints" {
		t.Fatalf("expected raw name preserved, got %q", saver.rawName)
	}
}

// TestPut_NilIsRejected verifies that a nil checkpoint errors without any
// database interaction.
func TestPut_NilIsRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)
	if putErr := saver.Put(context.Background(), nil); putErr == nil {
		t.Fatal("expected error for nil checkpoint")
	}

	// No expectations set; pgxmock will fail if any query is executed.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database call for nil checkpoint: %v", err)
	}
}

// TestPut_InsertsAllColumns verifies that a checkpoint triggers the correct
// INSERT with the right parameters, including NULL for empty next nodes and
// missing interrupt.
func TestPut_InsertsAllColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	cp := checkpoint.New("thread-1", 1, map[string]any{"counter": 1})
	stateJSON, _ := json.Marshal(cp.State)

	mock.ExpectExec("INSERT INTO agentgraph_checkpoints").
		WithArgs(
			cp.ID,
			"thread-1",
			1,
			stateJSON,
			[]byte(nil), // next_nodes: typed nil []byte matches marshalNullableJSON output
			[]byte(nil), // interrupt: typed nil []byte matches marshalNullableJSON output
			cp.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if putErr := saver.Put(context.Background(), cp); putErr != nil {
		t.Fatalf("Put returned unexpected error: %v", putErr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestPut_SerializesInterruptAndNext verifies JSONB serialization of the
// optional columns.
func TestPut_SerializesInterruptAndNext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	cp := checkpoint.New("thread-1", 2, map[string]any{"draft": "v1"})
	cp.Next = []string{"publish"}
	cp.Interrupt = &checkpoint.PendingInterrupt{Node: "approval", Value: "publish?"}

	stateJSON, _ := json.Marshal(cp.State)
	nextJSON, _ := json.Marshal(cp.Next)
	interruptJSON, _ := json.Marshal(cp.Interrupt)

	mock.ExpectExec("INSERT INTO agentgraph_checkpoints").
		WithArgs(cp.ID, "thread-1", 2, stateJSON, nextJSON, interruptJSON, cp.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if putErr := saver.Put(context.Background(), cp); putErr != nil {
		t.Fatalf("Put returned unexpected error: %v", putErr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestPut_PropagatesExecError verifies that database errors are wrapped and
// returned.
func TestPut_PropagatesExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)
	cp := checkpoint.New("thread-1", 1, nil)
	stateJSON := []byte("{}")

	mock.ExpectExec("INSERT INTO agentgraph_checkpoints").
		WithArgs(cp.ID, "thread-1", 1, stateJSON, []byte(nil), []byte(nil), cp.CreatedAt).
		WillReturnError(fmt.Errorf("connection refused"))

	if putErr := saver.Put(context.Background(), cp); putErr == nil {
		t.Fatal("expected error from Put, got nil")
	}
}

func checkpointColumns() []string {
	return []string{"id", "thread_id", "step", "state", "next_nodes", "interrupt", "created_at"}
}

// TestLatest_ReturnsMostRecent verifies scanning and JSONB decoding of the
// newest row.
func TestLatest_ReturnsMostRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, thread_id").
		WithArgs("thread-1").
		WillReturnRows(
			pgxmock.NewRows(checkpointColumns()).
				AddRow("cp-2", "thread-1", 2, []byte(`{"counter":2}`), []byte(`["reviewer"]`), []byte(`{"node":"approval","value":"ok?"}`), createdAt),
		)

	cp, latestErr := saver.Latest(context.Background(), "thread-1")
	if latestErr != nil {
		t.Fatalf("Latest returned unexpected error: %v", latestErr)
	}
	if cp == nil {
		t.Fatal("expected non-nil checkpoint")
	}
	if cp.ID != "cp-2" || cp.ThreadID != "thread-1" || cp.Step != 2 {
		t.Fatalf("unexpected checkpoint identity: %+v", cp)
	}
	if cp.State["counter"] != float64(2) {
		t.Fatalf("expected counter float64(2), got %T(%v)", cp.State["counter"], cp.State["counter"])
	}
	if len(cp.Next) != 1 || cp.Next[0] != "reviewer" {
		t.Fatalf("expected next [reviewer], got %v", cp.Next)
	}
	if cp.Interrupt == nil || cp.Interrupt.Node != "approval" || cp.Interrupt.Value != "ok?" {
		t.Fatalf("unexpected interrupt: %+v", cp.Interrupt)
	}
	if !cp.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at %v, got %v", createdAt, cp.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestLatest_EmptyThread verifies that an unknown thread returns (nil, nil).
func TestLatest_EmptyThread(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectQuery("SELECT id, thread_id").
		WithArgs("ghost-thread").
		WillReturnRows(pgxmock.NewRows(checkpointColumns())) // no rows

	cp, latestErr := saver.Latest(context.Background(), "ghost-thread")
	if latestErr != nil {
		t.Fatalf("Latest returned unexpected error: %v", latestErr)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint for unknown thread, got %+v", cp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestList_ReturnsChronologicalOrder verifies that rows are scanned in order
// with NULL optional columns handled.
func TestList_ReturnsChronologicalOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, thread_id").
		WithArgs("thread-1").
		WillReturnRows(
			pgxmock.NewRows(checkpointColumns()).
				AddRow("cp-1", "thread-1", 1, []byte(`{"step":1}`), nil, nil, createdAt).
				AddRow("cp-2", "thread-1", 2, []byte(`{"step":2}`), nil, nil, createdAt),
		)

	history, listErr := saver.List(context.Background(), "thread-1")
	if listErr != nil {
		t.Fatalf("List returned unexpected error: %v", listErr)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(history))
	}
	if history[0].ID != "cp-1" || history[1].ID != "cp-2" {
		t.Fatalf("unexpected order: %v, %v", history[0].ID, history[1].ID)
	}
	if history[0].Next != nil || history[0].Interrupt != nil {
		t.Fatalf("expected NULL optional columns to stay empty, got %+v", history[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestList_EmptyResult verifies that an empty result set returns a non-nil
// empty slice.
func TestList_EmptyResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectQuery("SELECT id, thread_id").
		WithArgs("thread-1").
		WillReturnRows(pgxmock.NewRows(checkpointColumns()))

	history, listErr := saver.List(context.Background(), "thread-1")
	if listErr != nil {
		t.Fatalf("List returned unexpected error: %v", listErr)
	}
	if history == nil {
		t.Fatal("expected non-nil slice for empty result")
	}
	if len(history) != 0 {
		t.Fatalf("expected 0 checkpoints, got %d", len(history))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestList_RowsIterationError verifies that an error surfaced by rows.Err()
// after iteration is propagated.
func TestList_RowsIterationError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	iterErr := fmt.Errorf("network interrupted during iteration")
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, thread_id").
		WithArgs("thread-1").
		WillReturnRows(
			pgxmock.NewRows(checkpointColumns()).
				AddRow("cp-1", "thread-1", 1, []byte(`{}`), nil, nil, createdAt).
				CloseError(iterErr),
		)

	_, listErr := saver.List(context.Background(), "thread-1")
	if listErr == nil {
		t.Fatal("expected error from rows.Err(), got nil")
	}
	if !errors.Is(listErr, iterErr) {
		t.Errorf("expected wrapped iterErr, got %v", listErr)
	}
}

// TestDeleteThread_ExecutesDelete verifies that DeleteThread issues a DELETE
// scoped to the thread.
func TestDeleteThread_ExecutesDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectExec("DELETE FROM agentgraph_checkpoints").
		WithArgs("thread-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	if deleteErr := saver.DeleteThread(context.Background(), "thread-1"); deleteErr != nil {
		t.Fatalf("DeleteThread returned unexpected error: %v", deleteErr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestDeleteThread_PropagatesError verifies that a DELETE failure is wrapped
// and returned.
func TestDeleteThread_PropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectExec("DELETE FROM agentgraph_checkpoints").
		WithArgs("thread-1").
		WillReturnError(fmt.Errorf("delete failed"))

	if deleteErr := saver.DeleteThread(context.Background(), "thread-1"); deleteErr == nil {
		t.Fatal("expected error from DeleteThread, got nil")
	}
}

// TestEnsureSchema_ExecutesAllStatements verifies that EnsureSchema issues
// the CREATE TABLE and CREATE INDEX statements.
func TestEnsureSchema_ExecutesAllStatements(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agentgraph_checkpoints").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	if schemaErr := saver.EnsureSchema(context.Background()); schemaErr != nil {
		t.Fatalf("EnsureSchema returned unexpected error: %v", schemaErr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestEnsureSchema_PropagatesTableError verifies that a table creation failure
// is returned without attempting index creation.
func TestEnsureSchema_PropagatesTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agentgraph_checkpoints").
		WillReturnError(fmt.Errorf("permission denied"))

	if schemaErr := saver.EnsureSchema(context.Background()); schemaErr == nil {
		t.Fatal("expected error from EnsureSchema, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestEnsureSchema_PropagatesIndexError verifies that an index creation
// failure is returned after the table succeeds.
func TestEnsureSchema_PropagatesIndexError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	saver := New(mock)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agentgraph_checkpoints").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").
		WillReturnError(fmt.Errorf("index creation failed"))

	if schemaErr := saver.EnsureSchema(context.Background()); schemaErr == nil {
		t.Fatal("expected error from EnsureSchema on index, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestMarshalState_NilBecomesEmptyObject verifies the NOT NULL normalization.
func TestMarshalState_NilBecomesEmptyObject(t *testing.T) {
	data, err := marshalState(nil)
	if err != nil {
		t.Fatalf("marshalState returned unexpected error: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected empty JSON object for nil state, got %s", data)
	}
}

// TestMarshalNullableJSON_EmptyValuesReturnNil verifies that empty values
// produce nil (SQL NULL) instead of "[]" or "null".
func TestMarshalNullableJSON_EmptyValuesReturnNil(t *testing.T) {
	testCases := []struct {
		name  string
		value any
	}{
		{"empty next nodes", []string{}},
		{"nil next nodes", []string(nil)},
		{"nil interrupt", (*checkpoint.PendingInterrupt)(nil)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := marshalNullableJSON(testCase.value)
			if err != nil {
				t.Fatalf("marshalNullableJSON returned unexpected error: %v", err)
			}
			if result != nil {
				t.Fatalf("expected nil for %s, got %s", testCase.name, string(result))
			}
		})
	}
}

// TestBuildCheckpoint_MalformedStateIsAnError verifies that undecodable state
// JSONB is reported instead of silently dropped.
func TestBuildCheckpoint_MalformedStateIsAnError(t *testing.T) {
	_, err := buildCheckpoint("cp-1", "thread-1", 1, []byte(`{bad json}`), nil, nil, time.Now())
	if err == nil {
		t.Fatal("expected error for malformed state JSON")
	}
}
