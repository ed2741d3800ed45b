// Package checkpoint defines durable snapshots of graph runs and the Saver
// interface that persistence backends implement.
//
// A checkpoint is written after every super-step of a graph invocation that
// runs with a thread id. Restoring the latest checkpoint of a thread resumes
// the run exactly where it stopped, whether it completed, failed, or paused
// on an interrupt. Implementations live in the memsaver, redissaver, and
// pgsaver subpackages.
package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a snapshot of a graph run captured after a super-step.
//
// State holds the full graph state at the time of the snapshot. Backends
// serialize checkpoints as JSON, so values read back carry generic JSON types
// (map[string]any, []any, float64); the graph schema rehydrates typed values
// on restore.
type Checkpoint struct {
	// ID uniquely identifies this checkpoint.
	ID string `json:"id"`

	// ThreadID groups the checkpoints belonging to one logical run or
	// conversation.
	ThreadID string `json:"thread_id"`

	// Step is the super-step number the snapshot was taken after. The first
	// snapshot of a run has step 1.
	Step int `json:"step"`

	// State is the full graph state at the time of the snapshot.
	State map[string]any `json:"state"`

	// Next lists the nodes scheduled to run when the thread resumes. Empty
	// means the run completed.
	Next []string `json:"next,omitempty"`

	// Interrupt carries the pending interrupt that paused the run, if any.
	Interrupt *PendingInterrupt `json:"interrupt,omitempty"`

	// CreatedAt is the snapshot creation time in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// PendingInterrupt records an interrupt raised by a node, waiting for a
// resume value from the caller.
type PendingInterrupt struct {
	// Node is the node that raised the interrupt.
	Node string `json:"node"`

	// Value is the payload the node passed to the interrupt, surfaced to the
	// caller so it can decide how to resume.
	Value any `json:"value,omitempty"`
}

// New returns a checkpoint for the given thread and step with a fresh unique
// id and the current UTC time.
func New(threadID string, step int, state map[string]any) *Checkpoint {
	return &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Step:      step,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
}

// Saver persists and retrieves checkpoints, keyed by thread.
//
// All methods accept a context so database-backed implementations can honor
// cancellation. In-process implementations may ignore it.
type Saver interface {
	// Put appends checkpoint to its thread's history.
	Put(ctx context.Context, checkpoint *Checkpoint) error

	// Latest returns the most recent checkpoint for the thread, or (nil, nil)
	// when the thread has no checkpoints.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns the thread's full checkpoint history in chronological
	// order. The returned slice is never nil.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// DeleteThread removes all checkpoints for the thread.
	DeleteThread(ctx context.Context, threadID string) error
}
