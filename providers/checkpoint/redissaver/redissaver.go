// Package redissaver provides a Redis-backed implementation of
// [checkpoint.Saver] for sharing thread state across processes.
//
// Each thread's history is a Redis list of JSON-serialized checkpoints under
// the key <prefix>/checkpoints/<threadID>. The main entry point is [New],
// which wraps an existing go-redis client.
package redissaver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/redis/go-redis/v9"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
)

// defaultPrefix namespaces all keys when no custom prefix is provided.
const defaultPrefix = "agentgraph"

// Saver persists checkpoints in Redis, one list per thread.
type Saver struct {
	client  *redis.Client
	prefix  string
	history int64
}

// Option configures optional Saver behavior.
type Option func(*Saver)

// WithPrefix overrides the default key namespace ("agentgraph"). Use distinct
// prefixes to run multiple applications against one Redis instance.
func WithPrefix(prefix string) Option {
	return func(s *Saver) {
		s.prefix = prefix
	}
}

// WithHistoryLimit caps the number of checkpoints retained per thread. Older
// entries are trimmed away on Put. Zero or negative means unlimited.
func WithHistoryLimit(n int) Option {
	return func(s *Saver) {
		s.history = int64(n)
	}
}

// New returns a Redis-backed checkpoint saver using the given client.
// The client's lifecycle stays with the caller; Saver never closes it.
func New(client *redis.Client, opts ...Option) *Saver {
	saver := &Saver{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(saver)
	}
	return saver
}

// Ensure Saver implements checkpoint.Saver at compile time.
var _ checkpoint.Saver = (*Saver)(nil)

func (s *Saver) threadKey(threadID string) string {
	return path.Join(s.prefix, "checkpoints", threadID)
}

// Put appends cp to its thread's list. When a history limit is configured,
// the push and the trim run in a single pipeline round-trip.
func (s *Saver) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("redissaver: nil checkpoint")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redissaver: marshal checkpoint: %w", err)
	}

	key := s.threadKey(cp.ThreadID)

	if s.history > 0 {
		pipe := s.client.Pipeline()
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -s.history, -1)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redissaver: store checkpoint: %w", err)
		}
		return nil
	}

	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("redissaver: store checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint for the thread, or (nil, nil)
// when the thread has no checkpoints.
func (s *Saver) Latest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.LIndex(ctx, s.threadKey(threadID), -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redissaver: latest checkpoint: %w", err)
	}

	var cp checkpoint.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("redissaver: decode checkpoint: %w", err)
	}
	return &cp, nil
}

// List returns the thread's full checkpoint history in chronological order.
// The returned slice is never nil.
func (s *Saver) List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	items, err := s.client.LRange(ctx, s.threadKey(threadID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*checkpoint.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("redissaver: list checkpoints: %w", err)
	}

	checkpoints := make([]*checkpoint.Checkpoint, 0, len(items))
	for _, item := range items {
		var cp checkpoint.Checkpoint
		if err := json.Unmarshal([]byte(item), &cp); err != nil {
			return nil, fmt.Errorf("redissaver: decode checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// DeleteThread removes the thread's checkpoint list.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.threadKey(threadID)).Err(); err != nil {
		return fmt.Errorf("redissaver: delete thread: %w", err)
	}
	return nil
}
