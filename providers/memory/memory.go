package memory

import (
	"context"

	"github.com/anshlambagit/agentgraph/providers/ai"
)

// Provider stores and retrieves conversation history for a chat session.
//
// Write operations accept a context so database-backed implementations can
// honor cancellation; read operations additionally return errors so storage
// failures surface instead of being swallowed. In-process implementations may
// ignore the context and always return nil errors.
type Provider interface {
	// AppendMessage stores message at the end of the history. Implementations
	// must treat a nil message as a no-op.
	AppendMessage(ctx context.Context, message *ai.Message)

	// Count returns the number of stored messages.
	Count(ctx context.Context) (int, error)

	// AllMessages returns the full history as an independent slice. The
	// returned slice is never nil.
	AllMessages(ctx context.Context) ([]ai.Message, error)

	// LastMessages returns up to the last n messages. If n exceeds the number
	// of stored messages, all messages are returned. A non-positive n yields
	// an empty slice.
	LastMessages(ctx context.Context, n int) ([]ai.Message, error)

	// PopLastMessage removes and returns the most recent message, or nil when
	// the history is empty.
	PopLastMessage(ctx context.Context) (*ai.Message, error)

	// ClearMessages removes all stored messages.
	ClearMessages(ctx context.Context)

	// FilterByRole returns all messages whose role matches role, preserving
	// order. The returned slice is never nil.
	FilterByRole(ctx context.Context, role ai.MessageRole) ([]ai.Message, error)
}
