package graph

import (
	"errors"
	"fmt"
)

// RecursionError is returned by Invoke when a run exceeds the graph's
// recursion limit before the frontier drains. Cyclic graphs hit it when
// their exit condition never fires; raise the limit with
// [WithRecursionLimit] if the workload legitimately needs more steps.
type RecursionError struct {
	// Limit is the configured maximum number of super-steps.
	Limit int
}

func (recursionError *RecursionError) Error() string {
	return fmt.Sprintf("graph exceeded recursion limit of %d steps without reaching %s", recursionError.Limit, End)
}

// InterruptError is returned by Invoke when a run pauses for outside input,
// either because a node called [Interrupt] or because the node was listed in
// [WithInterruptBefore] or [WithInterruptAfter]. The run's state is
// checkpointed; resume it by invoking the same thread with [WithResume] or
// [WithCommand].
type InterruptError struct {
	// Payload is the value the node passed to Interrupt. Nil for static
	// interrupts configured on the graph.
	Payload any `json:"payload,omitempty"`

	// Node is the node the run paused at.
	Node string `json:"node"`

	// Next lists the nodes that will run when the thread resumes.
	Next []string `json:"next,omitempty"`
}

func (interruptError *InterruptError) Error() string {
	if interruptError.Node == "" {
		return "graph interrupted"
	}
	return fmt.Sprintf("graph interrupted at node %q", interruptError.Node)
}

// AsInterrupt unwraps an error returned by Invoke into an *InterruptError.
// The boolean reports whether the error (or anything it wraps) is one.
//
// Example:
//
//	finalState, err := compiled.Invoke(ctx, nil, graph.WithThreadID("t1"))
//	if pause, ok := graph.AsInterrupt(err); ok {
//	    fmt.Println("approval needed:", pause.Payload)
//	}
func AsInterrupt(err error) (*InterruptError, bool) {
	var interruptError *InterruptError
	if errors.As(err, &interruptError) {
		return interruptError, true
	}
	return nil, false
}

// errConsumerStopped signals that a Stream consumer broke out of its range
// loop. It never escapes to callers; the run simply stops.
var errConsumerStopped = errors.New("stream consumer stopped iteration")
