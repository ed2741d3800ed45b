package graph

import (
	"time"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
	"github.com/anshlambagit/agentgraph/providers/observability"
)

// defaultRecursionLimit bounds the number of super-steps a run may take when
// no explicit limit is configured. Linear graphs never get close; cyclic
// graphs rely on it as their safety net.
const defaultRecursionLimit = 25

// graphConfig holds the compiled graph's execution settings.
type graphConfig struct {
	name            string
	recursionLimit  int
	maxConcurrency  int
	checkpointer    checkpoint.Saver
	observer        observability.Provider
	interruptBefore map[string]bool
	interruptAfter  map[string]bool
}

// Option configures a graph at Compile time. Options are passed to [New].
type Option func(*graphConfig)

// WithName sets a display name for the graph, used in logs and spans.
func WithName(name string) Option {
	return func(config *graphConfig) {
		config.name = name
	}
}

// WithRecursionLimit overrides the maximum number of super-steps per run
// (default 25). A run that exceeds it fails with *RecursionError. Values
// below 1 are ignored.
//
// Example:
//
//	g, err := graph.New(schema, graph.WithRecursionLimit(100)).
func WithRecursionLimit(limit int) Option {
	return func(config *graphConfig) {
		if limit > 0 {
			config.recursionLimit = limit
		}
	}
}

// WithMaxConcurrency caps how many node tasks of one super-step run at the
// same time. Zero or negative means unlimited.
func WithMaxConcurrency(max int) Option {
	return func(config *graphConfig) {
		config.maxConcurrency = max
	}
}

// WithCheckpointer attaches a checkpoint store. Together with a thread id on
// Invoke, the run's state is persisted after every super-step, allowing later
// invocations to continue the thread and interrupted runs to resume.
//
// Example:
//
//	saver := memsaver.New()
//	g, err := graph.New(schema, graph.WithCheckpointer(saver)).
func WithCheckpointer(saver checkpoint.Saver) Option {
	return func(config *graphConfig) {
		config.checkpointer = saver
	}
}

// WithObserver attaches an observability provider for spans, metrics, and
// logs across runs, steps, and nodes. Without one, an observer already
// carried by the Invoke context is used; with neither, observability is
// disabled.
func WithObserver(provider observability.Provider) Option {
	return func(config *graphConfig) {
		config.observer = provider
	}
}

// WithInterruptBefore pauses every run right before any of the named nodes
// executes, surfacing an *InterruptError. Requires a checkpointer and thread
// id so the paused run can be resumed.
func WithInterruptBefore(nodes ...string) Option {
	return func(config *graphConfig) {
		if config.interruptBefore == nil {
			config.interruptBefore = make(map[string]bool, len(nodes))
		}
		for _, node := range nodes {
			config.interruptBefore[node] = true
		}
	}
}

// WithInterruptAfter pauses every run right after any of the named nodes
// completes and its update is merged. Requires a checkpointer and thread id.
func WithInterruptAfter(nodes ...string) Option {
	return func(config *graphConfig) {
		if config.interruptAfter == nil {
			config.interruptAfter = make(map[string]bool, len(nodes))
		}
		for _, node := range nodes {
			config.interruptAfter[node] = true
		}
	}
}

// --- Node options ---

// NodeOption configures a single node at registration time.
type NodeOption func(*nodeConfig)

// WithNodeTimeout bounds each execution attempt of the node. The node's
// context is canceled when the timeout elapses; with retries configured,
// every attempt gets a fresh timeout.
func WithNodeTimeout(timeout time.Duration) NodeOption {
	return func(node *nodeConfig) {
		node.timeout = timeout
	}
}

// WithNodeRetry re-runs the node up to retries additional times when it
// returns an error. Retries are immediate; put backoff-sensitive retry logic
// in a client middleware instead. Interrupts and context cancellation are
// never retried.
func WithNodeRetry(retries int) NodeOption {
	return func(node *nodeConfig) {
		if retries > 0 {
			node.maxRetries = retries
		}
	}
}

// --- Invoke options ---

// invokeOptions carries per-run settings.
type invokeOptions struct {
	threadID   string
	command    *Command
	streamMode StreamMode
}

// InvokeOption configures a single Invoke or Stream call.
type InvokeOption func(*invokeOptions)

// WithThreadID names the conversation thread this run belongs to. With a
// checkpointer configured, runs on the same thread share accumulated state:
// each run restores the last checkpoint, merges its input, and persists new
// checkpoints as it goes.
func WithThreadID(threadID string) InvokeOption {
	return func(options *invokeOptions) {
		options.threadID = threadID
	}
}

// WithCommand starts the run from an operator command instead of plain
// input: its Update merges into the restored state, Resume answers a pending
// interrupt, and Goto overrides where execution continues.
func WithCommand(command Command) InvokeOption {
	return func(options *invokeOptions) {
		options.command = &command
	}
}

// WithResume answers the pending interrupt of a paused thread and continues
// the run. Shorthand for WithCommand(Command{Resume: value}).
//
// Example:
//
//	finalState, err := compiled.Invoke(ctx, nil,
//	    graph.WithThreadID("t1"),
//	    graph.WithResume(true),
//	)
func WithResume(value any) InvokeOption {
	return func(options *invokeOptions) {
		options.command = &Command{Resume: value}
	}
}

// WithStreamMode selects what Stream emits after each super-step; see
// [StreamMode]. Invoke ignores it.
func WithStreamMode(mode StreamMode) InvokeOption {
	return func(options *invokeOptions) {
		options.streamMode = mode
	}
}
