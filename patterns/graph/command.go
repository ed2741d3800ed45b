package graph

import "context"

// Start and End are the virtual endpoints of every graph. Start is the source
// of entry edges; End terminates a branch. Neither can host a node.
const (
	Start = "__start__"
	End   = "__end__"
)

// NodeFunc is the unit of work registered under a node name. It receives a
// snapshot of the current state and returns one of:
//
//   - a State (or map[string]any) partial update, merged through the schema
//   - a Command combining an update with an explicit jump or fan-out
//   - a []Send (or single Send) spawning dynamic parallel tasks
//   - nil, meaning no update
//
// After the update is merged the engine follows the node's outgoing edges,
// unless a Command or Send redirected control.
type NodeFunc func(ctx context.Context, state State) (any, error)

// Command lets a node combine a state update with a control-flow decision,
// instead of leaving routing to the graph's edges.
//
// Update is merged through the schema reducers first. Then, if Goto names a
// node, control jumps there (Goto End terminates the branch); if Sends is
// non-empty, each Send spawns a task. Goto and Sends are mutually exclusive.
// With neither set, the node's ordinary outgoing edges apply.
//
// Resume is only meaningful on the Command passed to [Graph.Invoke] via
// [WithCommand] when continuing an interrupted thread: it carries the value
// the pending [Interrupt] call will return.
//
// Example:
//
//	return graph.Command{
//	    Update: graph.State{"draft": draft},
//	    Goto:   "review",
//	}, nil
type Command struct {
	// Update is a partial state update, merged before control moves on.
	Update State

	// Goto names the node to run next, or End to stop this branch.
	Goto string

	// Sends spawns one task per entry, each with its private input state.
	Sends []Send

	// Resume carries the operator-supplied answer for a pending interrupt.
	Resume any
}

// Send dispatches a node with its own private input state, independent of the
// shared state. The target runs as one task of the next super-step; whatever
// it returns merges back into the shared state as usual. Multiple Sends to
// the same node create that many parallel tasks, which is how an orchestrator
// fans work out to identical workers.
//
// Example:
//
//	sends := make([]graph.Send, 0, len(plan.Sections))
//	for _, section := range plan.Sections {
//	    sends = append(sends, graph.Send{
//	        Node:  "worker",
//	        Input: graph.State{"section": section},
//	    })
//	}
//	return graph.Command{Update: graph.State{"plan": plan}, Sends: sends}, nil
type Send struct {
	// Node is the name of the node to dispatch.
	Node string

	// Input is the private state snapshot the dispatched node receives.
	Input State
}
