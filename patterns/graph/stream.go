package graph

import (
	"context"
	"errors"
	"iter"
	"time"
)

// StreamMode selects what [Graph.Stream] emits after each super-step.
type StreamMode string

const (
	// StreamValues emits the full merged state after every super-step as a
	// values event, alongside the per-node events. The default.
	StreamValues StreamMode = "values"

	// StreamUpdates suppresses the values events, leaving only per-node
	// updates. Useful when states are large and the consumer only reacts to
	// individual node completions.
	StreamUpdates StreamMode = "updates"
)

// EventType identifies a stream event.
type EventType string

const (
	// EventGraphStart opens every stream, before the first super-step.
	EventGraphStart EventType = "graph_start"

	// EventStepStart marks the beginning of a super-step.
	EventStepStart EventType = "step_start"

	// EventNodeStart marks a node task about to execute. With several nodes
	// on the frontier, one event per node is emitted in task order before
	// any of them runs.
	EventNodeStart EventType = "node_start"

	// EventNodeComplete carries a finished node's state update and duration.
	// Emitted in task order as updates are merged.
	EventNodeComplete EventType = "node_complete"

	// EventValues carries the full merged state after a super-step.
	// Emitted only in [StreamValues] mode.
	EventValues EventType = "values"

	// EventInterrupt reports that the run paused for outside input. The
	// stream then ends with the run's *InterruptError.
	EventInterrupt EventType = "interrupt"

	// EventDone closes a successful stream and carries the final state.
	EventDone EventType = "done"
)

// Event is one entry in a graph run's stream. Which fields are set depends
// on Type: Node, Update, and Duration on node events, Values on values and
// done events, Interrupt on interrupt events. Step is the current super-step
// on all of them.
type Event struct {
	Type      EventType       `json:"type"`
	Step      int             `json:"step"`
	Node      string          `json:"node,omitempty"`
	Update    State           `json:"update,omitempty"`
	Values    State           `json:"values,omitempty"`
	Interrupt *InterruptError `json:"interrupt,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
}

// Stream runs the graph like [Graph.Invoke] while yielding events as
// execution progresses, so callers can render intermediate results instead
// of waiting for the final state.
//
// Per super-step the order is: step_start, node_start for every frontier
// task, node_complete for every task as its update merges, then a values
// event in [StreamValues] mode. The stream opens with graph_start and, on
// success, closes with a done event carrying the final state. A run that
// fails or pauses yields its error as the last element; breaking out of the
// loop stops the run cleanly.
//
// All invoke options apply, so checkpointed threads and resumes stream the
// same way plain runs do.
//
// Example:
//
//	for event, err := range compiled.Stream(ctx, graph.State{"topic": "gophers"}) {
//	    if err != nil {
//	        return err
//	    }
//	    if event.Type == graph.EventNodeComplete {
//	        fmt.Printf("%s finished in %s\n", event.Node, event.Duration)
//	    }
//	}
func (graph *Graph) Stream(ctx context.Context, initial State, opts ...InvokeOption) iter.Seq2[Event, error] {
	options := resolveInvokeOptions(opts)

	return func(yield func(Event, error) bool) {
		activeRun, err := graph.prepare(ctx, initial, options)
		if err != nil {
			yield(Event{}, err)
			return
		}

		stopped := false
		activeRun.streamMode = options.streamMode
		activeRun.emit = func(event Event) bool {
			if !yield(event, nil) {
				stopped = true
				return false
			}
			return true
		}

		if _, err := activeRun.execute(ctx); err != nil && !stopped && !errors.Is(err, errConsumerStopped) {
			yield(Event{}, err)
		}
	}
}
