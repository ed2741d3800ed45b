package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anshlambagit/agentgraph/core/overview"
	"github.com/anshlambagit/agentgraph/providers/checkpoint"
)

// task is one unit of the frontier: a node to run, optionally with a private
// input state. A nil input means the node sees the shared state; a non-nil
// input marks a Send-dispatched task, which is never deduplicated.
type task struct {
	node  string
	input State
}

// taskResult captures one task's outcome for the sequential merge phase.
type taskResult struct {
	value    any
	err      error
	duration time.Duration
}

// errTaskCanceled marks a task that never ran because a sibling failed first.
// It is filtered out when the step's real error is selected.
var errTaskCanceled = errors.New("task canceled before execution")

// run is the mutable state of one graph invocation. A new run is created per
// Invoke or Stream call, which is what keeps a compiled Graph reusable
// across concurrent callers.
type run struct {
	graph    *Graph
	threadID string

	state      State
	step       int
	stepsTaken int
	frontier   []task

	// resume carries the operator's answer for a pending interrupt; it is
	// injected into the interrupted node's context when that node re-runs.
	resume     *resumeCell
	resumeNode string

	// skipInterruptsOnce suppresses the interrupt-before check on the first
	// step of a resumed run, so resuming does not immediately pause again.
	skipInterruptsOnce bool

	// emit delivers stream events; nil for plain Invoke. A false return
	// means the consumer stopped iterating.
	emit       func(Event) bool
	streamMode StreamMode

	observer observerState
}

// send emits a stream event, reporting whether execution should continue.
func (activeRun *run) send(event Event) bool {
	if activeRun.emit == nil {
		return true
	}
	return activeRun.emit(event)
}

func (activeRun *run) streamingValues() bool {
	return activeRun.emit != nil && activeRun.streamMode != StreamUpdates
}

// execute drives the run to completion, wiring overview tracking and
// observability around the super-step loop.
func (activeRun *run) execute(ctx context.Context) (State, error) {
	runStart := time.Now()

	executionOverview := overview.OverviewFromContext(&ctx)
	executionOverview.StartExecution()
	defer executionOverview.EndExecution()

	activeRun.observeRunStart(&ctx)

	if !activeRun.send(Event{Type: EventGraphStart, Step: activeRun.step}) {
		activeRun.observeRunStopped(ctx, time.Since(runStart))
		return nil, errConsumerStopped
	}

	finalState, err := activeRun.loop(ctx)
	totalDuration := time.Since(runStart)

	switch {
	case errors.Is(err, errConsumerStopped):
		activeRun.observeRunStopped(ctx, totalDuration)
		return nil, errConsumerStopped

	case err != nil:
		if interruptError, ok := AsInterrupt(err); ok {
			activeRun.observeRunInterrupted(ctx, interruptError, totalDuration)
			return nil, err
		}
		activeRun.observeRunFailed(ctx, err, totalDuration)
		return nil, err
	}

	activeRun.observeRunCompleted(ctx, totalDuration)
	activeRun.send(Event{Type: EventDone, Step: activeRun.step, Values: finalState.Clone()})
	return finalState, nil
}

// loop is the super-step engine: run the frontier, merge, route, checkpoint,
// repeat until the frontier drains.
func (activeRun *run) loop(ctx context.Context) (State, error) {
	graph := activeRun.graph

	for len(activeRun.frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph run canceled: %w", err)
		}

		if activeRun.stepsTaken >= graph.config.recursionLimit {
			return nil, &RecursionError{Limit: graph.config.recursionLimit}
		}

		if !activeRun.skipInterruptsOnce {
			if pausedNode := activeRun.firstFrontierMatch(graph.config.interruptBefore); pausedNode != "" {
				return nil, activeRun.pause(ctx, pausedNode, nil, activeRun.frontier)
			}
		}
		activeRun.skipInterruptsOnce = false

		activeRun.step++
		activeRun.stepsTaken++

		activeRun.observeStepStart(ctx, taskNames(activeRun.frontier))
		if !activeRun.send(Event{Type: EventStepStart, Step: activeRun.step}) {
			return nil, errConsumerStopped
		}
		for _, frontierTask := range activeRun.frontier {
			if !activeRun.send(Event{Type: EventNodeStart, Step: activeRun.step, Node: frontierTask.node}) {
				return nil, errConsumerStopped
			}
		}

		results := activeRun.executeTasks(ctx, activeRun.frontier)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph run canceled: %w", err)
		}

		// A node asking for an interrupt outranks sibling failures: the
		// whole step is abandoned and re-executes on resume.
		for index, result := range results {
			var interruptRequest *nodeInterrupt
			if result.err != nil && errors.As(result.err, &interruptRequest) {
				pending := &checkpoint.PendingInterrupt{
					Node:  activeRun.frontier[index].node,
					Value: interruptRequest.payload,
				}
				return nil, activeRun.pause(ctx, pending.Node, pending, activeRun.frontier)
			}
		}

		if err := stepFailure(activeRun.frontier, results); err != nil {
			return nil, err
		}

		// Merge all updates in task order before any routing runs, so
		// conditional edges decide on the fully merged state.
		controls := make([]control, len(results))
		for index, result := range results {
			update, taskControl, err := interpretResult(activeRun.frontier[index].node, result.value)
			if err != nil {
				return nil, err
			}
			controls[index] = taskControl

			if update != nil {
				if err := graph.schema.apply(activeRun.state, update); err != nil {
					return nil, fmt.Errorf("node %q: %w", activeRun.frontier[index].node, err)
				}
			}

			completeEvent := Event{
				Type:     EventNodeComplete,
				Step:     activeRun.step,
				Node:     activeRun.frontier[index].node,
				Update:   update,
				Duration: result.duration,
			}
			if !activeRun.send(completeEvent) {
				return nil, errConsumerStopped
			}
		}

		if activeRun.streamingValues() {
			if !activeRun.send(Event{Type: EventValues, Step: activeRun.step, Values: activeRun.state.Clone()}) {
				return nil, errConsumerStopped
			}
		}

		next, err := activeRun.nextFrontier(ctx, controls)
		if err != nil {
			return nil, err
		}

		activeRun.observeStepEnd(ctx, len(next))

		if pausedNode := activeRun.firstFrontierMatch(graph.config.interruptAfter); pausedNode != "" {
			return nil, activeRun.pause(ctx, pausedNode, nil, next)
		}

		activeRun.frontier = next

		if err := activeRun.saveCheckpoint(ctx, nil, taskNames(activeRun.frontier)); err != nil {
			return nil, err
		}
	}

	// A run that ends without taking a step, such as a resume that jumped
	// straight to End, still records its completion.
	if activeRun.stepsTaken == 0 {
		if err := activeRun.saveCheckpoint(ctx, nil, nil); err != nil {
			return nil, err
		}
	}

	return activeRun.state, nil
}

// executeTasks runs the frontier's tasks in parallel and returns their
// results indexed by task position. The first failure cancels the step's
// remaining tasks.
func (activeRun *run) executeTasks(ctx context.Context, tasks []task) []taskResult {
	results := make([]taskResult, len(tasks))

	if len(tasks) == 1 {
		results[0] = activeRun.executeTask(ctx, tasks[0])
		return results
	}

	stepContext, cancelStep := context.WithCancel(ctx)
	defer cancelStep()

	var semaphore chan struct{}
	if activeRun.graph.config.maxConcurrency > 0 {
		semaphore = make(chan struct{}, activeRun.graph.config.maxConcurrency)
	}

	var waitGroup sync.WaitGroup
	for index := range tasks {
		waitGroup.Add(1)

		go func(taskIndex int) {
			defer waitGroup.Done()

			if semaphore != nil {
				select {
				case semaphore <- struct{}{}:
					defer func() { <-semaphore }()
				case <-stepContext.Done():
					results[taskIndex] = taskResult{err: errTaskCanceled}
					return
				}
			}
			if stepContext.Err() != nil {
				results[taskIndex] = taskResult{err: errTaskCanceled}
				return
			}

			result := activeRun.executeTask(stepContext, tasks[taskIndex])
			results[taskIndex] = result
			if result.err != nil {
				cancelStep()
			}
		}(index)
	}

	waitGroup.Wait()
	return results
}

// stepFailure selects the error a failed step reports: the lowest-index
// failure that is not collateral damage from the step being canceled.
func stepFailure(tasks []task, results []taskResult) error {
	var firstCanceled error

	for index, result := range results {
		if result.err == nil || errors.Is(result.err, errTaskCanceled) {
			continue
		}
		if errors.Is(result.err, context.Canceled) {
			if firstCanceled == nil {
				firstCanceled = fmt.Errorf("node %q: %w", tasks[index].node, result.err)
			}
			continue
		}
		return fmt.Errorf("node %q: %w", tasks[index].node, result.err)
	}

	return firstCanceled
}

// executeTask runs a single node with retries, timeout, and its span.
func (activeRun *run) executeTask(ctx context.Context, currentTask task) taskResult {
	node := activeRun.graph.nodes[currentTask.node]

	taskContext := ctx
	activeRun.observeNodeStart(&taskContext, currentTask.node)

	if activeRun.resume != nil && currentTask.node == activeRun.resumeNode {
		taskContext = contextWithResume(taskContext, activeRun.resume)
	}

	started := time.Now()
	value, err := activeRun.runAttempts(taskContext, node, currentTask)
	duration := time.Since(started)

	if err != nil {
		var interruptRequest *nodeInterrupt
		if errors.As(err, &interruptRequest) {
			activeRun.observeNodeInterrupted(taskContext, currentTask.node, duration)
		} else {
			activeRun.observeNodeFailed(taskContext, currentTask.node, err, duration)
		}
		return taskResult{err: err, duration: duration}
	}

	activeRun.observeNodeCompleted(taskContext, currentTask.node, duration)
	return taskResult{value: value, duration: duration}
}

// runAttempts executes the node function up to 1+maxRetries times. Each
// attempt sees a fresh state snapshot and, when configured, a fresh timeout.
// Interrupt requests and an already-canceled task context end the attempts
// immediately.
func (activeRun *run) runAttempts(ctx context.Context, node *nodeConfig, currentTask task) (any, error) {
	var lastErr error
	attempts := node.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		input := activeRun.taskInput(currentTask)

		attemptContext := ctx
		var cancelAttempt context.CancelFunc
		if node.timeout > 0 {
			attemptContext, cancelAttempt = context.WithTimeout(ctx, node.timeout)
		}

		value, err := node.fn(attemptContext, input)
		if cancelAttempt != nil {
			cancelAttempt()
		}
		if err == nil {
			return value, nil
		}

		var interruptRequest *nodeInterrupt
		if errors.As(err, &interruptRequest) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if attempt < attempts {
			activeRun.observeNodeRetry(ctx, node.name, attempt, err)
		}
	}

	return nil, lastErr
}

// taskInput snapshots the state a node attempt receives: the task's private
// Send input when present, the shared state otherwise.
func (activeRun *run) taskInput(currentTask task) State {
	if currentTask.input != nil {
		return currentTask.input.Clone()
	}
	return activeRun.state.Clone()
}

// --- Result interpretation and routing ---

type controlKind int

const (
	controlEdges controlKind = iota
	controlGoto
	controlSends
)

// control is a node's routing decision, extracted from its return value.
type control struct {
	kind     controlKind
	gotoNode string
	sends    []Send
}

// interpretResult splits a node's return value into its state update and its
// control-flow decision.
func interpretResult(nodeName string, raw any) (State, control, error) {
	switch value := raw.(type) {
	case nil:
		return nil, control{kind: controlEdges}, nil
	case State:
		return value, control{kind: controlEdges}, nil
	case map[string]any:
		return State(value), control{kind: controlEdges}, nil
	case Command:
		return interpretCommand(nodeName, value)
	case *Command:
		if value == nil {
			return nil, control{kind: controlEdges}, nil
		}
		return interpretCommand(nodeName, *value)
	case []Send:
		return nil, control{kind: controlSends, sends: value}, nil
	case Send:
		return nil, control{kind: controlSends, sends: []Send{value}}, nil
	default:
		return nil, control{}, fmt.Errorf("node %q returned unsupported type %T", nodeName, raw)
	}
}

func interpretCommand(nodeName string, command Command) (State, control, error) {
	if command.Goto != "" && len(command.Sends) > 0 {
		return nil, control{}, fmt.Errorf("node %q returned a command with both Goto and Sends", nodeName)
	}

	switch {
	case len(command.Sends) > 0:
		return command.Update, control{kind: controlSends, sends: command.Sends}, nil
	case command.Goto != "":
		return command.Update, control{kind: controlGoto, gotoNode: command.Goto}, nil
	default:
		return command.Update, control{kind: controlEdges}, nil
	}
}

// nextFrontier resolves each task's control against the merged state. Plain
// activations are deduplicated so a node fed by several parents runs once;
// Send tasks are kept verbatim, one task per Send.
func (activeRun *run) nextFrontier(ctx context.Context, controls []control) ([]task, error) {
	next := make([]task, 0, len(controls))
	seen := make(map[string]bool)

	for index, frontierTask := range activeRun.frontier {
		targets, err := activeRun.resolveControl(ctx, frontierTask.node, controls[index])
		if err != nil {
			return nil, err
		}

		for _, nextTask := range targets {
			if nextTask.input == nil {
				if seen[nextTask.node] {
					continue
				}
				seen[nextTask.node] = true
			}
			next = append(next, nextTask)
		}
	}

	return next, nil
}

// resolveControl translates one routing decision into frontier tasks.
func (activeRun *run) resolveControl(ctx context.Context, nodeName string, taskControl control) ([]task, error) {
	graph := activeRun.graph

	switch taskControl.kind {
	case controlGoto:
		if taskControl.gotoNode == End {
			return nil, nil
		}
		if _, known := graph.nodes[taskControl.gotoNode]; !known {
			return nil, fmt.Errorf("node %q routed to unknown node %q", nodeName, taskControl.gotoNode)
		}
		return []task{{node: taskControl.gotoNode}}, nil

	case controlSends:
		tasks := make([]task, 0, len(taskControl.sends))
		for _, send := range taskControl.sends {
			if _, known := graph.nodes[send.Node]; !known {
				return nil, fmt.Errorf("node %q dispatched a send to unknown node %q", nodeName, send.Node)
			}
			input := send.Input
			if input == nil {
				input = State{}
			}
			tasks = append(tasks, task{node: send.Node, input: input})
		}
		return tasks, nil

	default:
		return activeRun.resolveTargets(ctx, nodeName)
	}
}

// resolveTargets follows a node's declared edges: its conditional branch when
// it has one, its static edges otherwise. Also resolves the entry frontier
// when called with Start.
func (activeRun *run) resolveTargets(ctx context.Context, source string) ([]task, error) {
	graph := activeRun.graph

	if sourceBranch := graph.branches[source]; sourceBranch != nil {
		label, err := sourceBranch.path(ctx, activeRun.state.Clone())
		if err != nil {
			return nil, fmt.Errorf("conditional edge on %q: %w", source, err)
		}

		target := label
		if sourceBranch.targets != nil {
			mapped, declared := sourceBranch.targets[label]
			if !declared {
				return nil, fmt.Errorf("conditional edge on %q returned undeclared label %q", source, label)
			}
			target = mapped
		}

		if target == End {
			return nil, nil
		}
		if _, known := graph.nodes[target]; !known {
			return nil, fmt.Errorf("conditional edge on %q routed to unknown node %q", source, target)
		}
		return []task{{node: target}}, nil
	}

	targets := graph.edges[source]
	tasks := make([]task, 0, len(targets))
	for _, target := range targets {
		if target == End {
			continue
		}
		tasks = append(tasks, task{node: target})
	}
	return tasks, nil
}

// --- Pausing and persistence ---

// pause checkpoints the run with its pending frontier and returns the
// InterruptError callers receive from Invoke.
func (activeRun *run) pause(ctx context.Context, node string, pending *checkpoint.PendingInterrupt, next []task) error {
	if activeRun.graph.config.checkpointer == nil || activeRun.threadID == "" {
		return fmt.Errorf("interrupt at node %q requires a checkpointer and a thread id", node)
	}

	names := taskNames(next)
	if err := activeRun.saveCheckpoint(ctx, pending, names); err != nil {
		return err
	}

	interruptError := &InterruptError{Node: node, Next: names}
	if pending != nil {
		interruptError.Payload = pending.Value
	}

	activeRun.send(Event{Type: EventInterrupt, Step: activeRun.step, Node: node, Interrupt: interruptError})
	return interruptError
}

// saveCheckpoint persists the current state when the run is bound to a
// thread; otherwise it is a no-op.
func (activeRun *run) saveCheckpoint(ctx context.Context, pending *checkpoint.PendingInterrupt, next []string) error {
	graph := activeRun.graph
	if graph.config.checkpointer == nil || activeRun.threadID == "" {
		return nil
	}

	snapshot := checkpoint.New(activeRun.threadID, activeRun.step, activeRun.state.Clone())
	snapshot.Next = next
	snapshot.Interrupt = pending

	if err := graph.config.checkpointer.Put(ctx, snapshot); err != nil {
		return fmt.Errorf("save checkpoint for thread %q: %w", activeRun.threadID, err)
	}

	activeRun.observeCheckpointSaved(ctx)
	return nil
}

// firstFrontierMatch returns the first frontier node present in names,
// or "" when none match.
func (activeRun *run) firstFrontierMatch(names map[string]bool) string {
	if len(names) == 0 {
		return ""
	}
	for _, frontierTask := range activeRun.frontier {
		if names[frontierTask.node] {
			return frontierTask.node
		}
	}
	return ""
}

func taskNames(tasks []task) []string {
	names := make([]string, len(tasks))
	for index, currentTask := range tasks {
		names[index] = currentTask.node
	}
	return names
}
