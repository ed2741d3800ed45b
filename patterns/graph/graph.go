package graph

import (
	"context"
	"fmt"

	"github.com/anshlambagit/agentgraph/providers/checkpoint"
)

// Graph is the compiled, executable form of a builder. It is immutable:
// a single Graph can serve concurrent Invoke and Stream calls, each run
// keeping its own state.
//
// Execution proceeds in super-steps. Each step runs every node on the current
// frontier in parallel, merges their updates through the schema reducers in
// deterministic task order, then follows edges, commands, and sends to form
// the next frontier. The run ends when the frontier is empty or the recursion
// limit is hit. Cycles are legal; the recursion limit is what bounds them.
type Graph struct {
	schema    Schema
	nodes     map[string]*nodeConfig
	nodeOrder []string
	edges     map[string][]string
	branches  map[string]*branch
	config    graphConfig
}

// Name returns the display name configured with [WithName], or "" if unset.
func (graph *Graph) Name() string {
	return graph.config.name
}

// Nodes returns the registered node names in registration order.
func (graph *Graph) Nodes() []string {
	names := make([]string, len(graph.nodeOrder))
	copy(names, graph.nodeOrder)
	return names
}

// Invoke runs the graph to completion and returns the final state.
//
// With a checkpointer and [WithThreadID], the run first restores the thread's
// latest checkpoint, merges initial through the schema reducers on top of the
// restored state, and persists a new checkpoint after every super-step. A run
// that pauses returns a nil state and an *InterruptError; continue it by
// invoking the same thread with [WithResume] or [WithCommand], or, for
// statically configured interrupts, with nil input.
//
// Example:
//
//	finalState, err := compiled.Invoke(ctx, graph.State{"topic": "gophers"})
//	if err != nil {
//	    return err
//	}
//	report, _ := graph.Get[string](finalState, "report")
func (graph *Graph) Invoke(ctx context.Context, initial State, opts ...InvokeOption) (State, error) {
	options := resolveInvokeOptions(opts)

	activeRun, err := graph.prepare(ctx, initial, options)
	if err != nil {
		return nil, err
	}

	return activeRun.execute(ctx)
}

func resolveInvokeOptions(opts []InvokeOption) invokeOptions {
	var options invokeOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// prepare restores the thread's checkpoint if one exists, merges the caller's
// input or command, and resolves the first frontier.
func (graph *Graph) prepare(ctx context.Context, initial State, options invokeOptions) (*run, error) {
	activeRun := &run{
		graph:    graph,
		threadID: options.threadID,
		state:    State{},
	}

	restored, err := graph.loadCheckpoint(ctx, options.threadID)
	if err != nil {
		return nil, err
	}

	if restored != nil {
		if restored.State != nil {
			activeRun.state = State(restored.State).Clone()
		}
		if err := graph.schema.rehydrate(activeRun.state); err != nil {
			return nil, fmt.Errorf("restore thread %q: %w", options.threadID, err)
		}
		activeRun.step = restored.Step
	}

	switch {
	case options.command != nil:
		if err := activeRun.prepareResume(ctx, restored, options.command); err != nil {
			return nil, err
		}

	case restored == nil || initial != nil:
		// A fresh thread, or a new turn merged on top of the accumulated
		// state. Either way the run enters at Start.
		if err := activeRun.prepareStart(ctx, initial); err != nil {
			return nil, err
		}

	case restored.Interrupt != nil:
		return nil, fmt.Errorf("thread %q is paused on an interrupt: resume it with WithResume or WithCommand", options.threadID)

	case len(restored.Next) > 0:
		// Nil input on a thread with pending nodes continues where the last
		// run stopped, whether it paused on a static interrupt or the
		// process died mid-run.
		frontier, err := activeRun.frontierFromNames(restored.Next)
		if err != nil {
			return nil, err
		}
		activeRun.frontier = frontier
		activeRun.skipInterruptsOnce = true

	default:
		return nil, fmt.Errorf("thread %q has already run to completion: pass new input to start another turn", options.threadID)
	}

	return activeRun, nil
}

// frontierFromNames rebuilds a frontier from the node names a checkpoint
// recorded, rejecting names the compiled graph no longer knows.
func (activeRun *run) frontierFromNames(names []string) ([]task, error) {
	frontier := make([]task, 0, len(names))
	for _, name := range names {
		if _, known := activeRun.graph.nodes[name]; !known {
			return nil, fmt.Errorf("checkpoint for thread %q references unknown node %q", activeRun.threadID, name)
		}
		frontier = append(frontier, task{node: name})
	}
	return frontier, nil
}

// prepareStart merges the caller's input and resolves the entry frontier
// from Start. Used for fresh runs and for follow-up input on an existing
// thread.
func (activeRun *run) prepareStart(ctx context.Context, initial State) error {
	if initial != nil {
		if err := activeRun.graph.schema.apply(activeRun.state, initial); err != nil {
			return fmt.Errorf("apply input: %w", err)
		}
	}

	frontier, err := activeRun.resolveTargets(ctx, Start)
	if err != nil {
		return err
	}
	activeRun.frontier = frontier
	return nil
}

// prepareResume continues a checkpointed run from an operator command. The
// command's update merges first; Resume is parked for the interrupted node;
// Goto overrides the saved frontier.
func (activeRun *run) prepareResume(ctx context.Context, restored *checkpoint.Checkpoint, command *Command) error {
	if restored == nil {
		return fmt.Errorf("thread %q has no checkpoint to resume from", activeRun.threadID)
	}

	if command.Update != nil {
		if err := activeRun.graph.schema.apply(activeRun.state, command.Update); err != nil {
			return fmt.Errorf("apply command update: %w", err)
		}
	}

	if command.Resume != nil {
		if restored.Interrupt == nil {
			return fmt.Errorf("thread %q has no pending interrupt to resume", activeRun.threadID)
		}
		activeRun.resume = &resumeCell{value: command.Resume}
		activeRun.resumeNode = restored.Interrupt.Node
	}

	switch {
	case len(command.Sends) > 0:
		return fmt.Errorf("a resume command cannot carry sends")

	case command.Goto != "":
		if command.Goto == End {
			activeRun.frontier = nil
			return nil
		}
		if _, known := activeRun.graph.nodes[command.Goto]; !known {
			return fmt.Errorf("command goto target %q is not a registered node", command.Goto)
		}
		activeRun.frontier = []task{{node: command.Goto}}

	default:
		if len(restored.Next) == 0 {
			return fmt.Errorf("thread %q has already run to completion", activeRun.threadID)
		}
		frontier, err := activeRun.frontierFromNames(restored.Next)
		if err != nil {
			return err
		}
		activeRun.frontier = frontier
	}

	// A resumed run must not re-trigger the static interrupt that paused it.
	activeRun.skipInterruptsOnce = true
	return nil
}

// loadCheckpoint fetches the thread's latest checkpoint, or nil when
// checkpointing is not in play for this run.
func (graph *Graph) loadCheckpoint(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	if graph.config.checkpointer == nil || threadID == "" {
		return nil, nil
	}

	restored, err := graph.config.checkpointer.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for thread %q: %w", threadID, err)
	}
	return restored, nil
}
