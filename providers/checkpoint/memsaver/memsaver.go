// Package memsaver provides an in-memory implementation of
// [checkpoint.Saver], suitable for examples, tests, and single-process runs.
// Thread histories are lost when the process exits.
package memsaver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
	"github.com/anshlambagit/agentgraph/providers/observability"
)

// Saver is a concurrency-safe in-memory checkpoint store.
//
// Checkpoints are held JSON-serialized, so values read back carry the same
// generic JSON types they would from a durable backend. Resuming from
// memsaver therefore behaves identically to resuming from redissaver or
// pgsaver, and returned checkpoints are fully isolated from stored ones.
type Saver struct {
	mu      sync.RWMutex
	threads map[string][][]byte
}

// New returns a new, empty in-memory checkpoint saver.
func New() *Saver {
	return &Saver{
		threads: make(map[string][][]byte),
	}
}

// Ensure Saver implements checkpoint.Saver at compile time.
var _ checkpoint.Saver = (*Saver)(nil)

// Put appends cp to its thread's history.
// When an observability span is present in ctx, a save event is recorded with
// the thread id and step.
func (s *Saver) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("memsaver: nil checkpoint")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("memsaver: marshal checkpoint: %w", err)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventCheckpointSave,
			observability.String(observability.AttrCheckpointThreadID, cp.ThreadID),
			observability.Int(observability.AttrCheckpointStep, cp.Step),
		)
	}

	s.mu.Lock()
	s.threads[cp.ThreadID] = append(s.threads[cp.ThreadID], data)
	s.mu.Unlock()
	return nil
}

// Latest returns the most recent checkpoint for the thread, or (nil, nil)
// when the thread has no checkpoints.
func (s *Saver) Latest(_ context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	history := s.threads[threadID]
	if len(history) == 0 {
		s.mu.RUnlock()
		return nil, nil
	}
	data := history[len(history)-1]
	s.mu.RUnlock()

	return decode(data)
}

// List returns the thread's full checkpoint history in chronological order.
// The returned slice is never nil.
func (s *Saver) List(_ context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	history := s.threads[threadID]
	buffered := make([][]byte, len(history))
	copy(buffered, history)
	s.mu.RUnlock()

	checkpoints := make([]*checkpoint.Checkpoint, 0, len(buffered))
	for _, data := range buffered {
		cp, err := decode(data)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// DeleteThread removes all checkpoints for the thread.
func (s *Saver) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	return nil
}

func decode(data []byte) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("memsaver: decode checkpoint: %w", err)
	}
	return &cp, nil
}
