package graph

import (
	"context"
	"time"

	"github.com/anshlambagit/agentgraph/providers/observability"
)

const (
	// metricGraphRunDuration is the histogram for total run duration.
	metricGraphRunDuration = "agentgraph.graph.run.duration"

	// metricGraphNodeDuration is the histogram for individual node execution
	// duration.
	metricGraphNodeDuration = "agentgraph.graph.node.duration"

	// metricGraphNodeCount is the counter for node executions by status.
	metricGraphNodeCount = "agentgraph.graph.node.count"
)

// observerState holds the observability provider and the root span for one
// run. Populated by observeRunStart; a nil provider disables all observe
// calls.
type observerState struct {
	provider observability.Provider
	rootSpan observability.Span
}

// observeRunStart resolves the run's observer, opens the root span, and
// attaches both to the context for downstream propagation.
func (activeRun *run) observeRunStart(ctx *context.Context) {
	activeRun.observer.provider = activeRun.graph.config.observer
	if activeRun.observer.provider == nil {
		activeRun.observer.provider = observability.ObserverFromContext(*ctx)
	}
	if activeRun.observer.provider == nil {
		return
	}

	attrs := []observability.Attribute{
		observability.String(observability.AttrGraphName, activeRun.graph.config.name),
	}
	if activeRun.threadID != "" {
		attrs = append(attrs, observability.String(observability.AttrGraphThreadID, activeRun.threadID))
	}

	var rootSpan observability.Span
	*ctx, rootSpan = activeRun.observer.provider.StartSpan(*ctx, observability.SpanGraphInvoke, attrs...)
	activeRun.observer.rootSpan = rootSpan

	*ctx = observability.ContextWithSpan(*ctx, rootSpan)
	*ctx = observability.ContextWithObserver(*ctx, activeRun.observer.provider)

	activeRun.observer.provider.Info(*ctx, "graph run started", attrs...)
}

// observeRunCompleted records a successful run and closes the root span.
func (activeRun *run) observeRunCompleted(ctx context.Context, totalDuration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Histogram(metricGraphRunDuration).Record(ctx, totalDuration.Seconds(),
		observability.String(observability.AttrGraphName, activeRun.graph.config.name),
	)

	activeRun.observer.provider.Info(ctx, "graph run completed",
		observability.String(observability.AttrStatus, "completed"),
		observability.Int(observability.AttrGraphStep, activeRun.step),
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.SetAttributes(
			observability.Int(observability.AttrGraphStep, activeRun.step),
		)
		activeRun.observer.rootSpan.SetStatus(observability.StatusOK, "graph run completed")
		activeRun.observer.rootSpan.End()
	}
}

// observeRunFailed records a failed run and closes the root span.
func (activeRun *run) observeRunFailed(ctx context.Context, runError error, totalDuration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Histogram(metricGraphRunDuration).Record(ctx, totalDuration.Seconds(),
		observability.String(observability.AttrGraphName, activeRun.graph.config.name),
	)

	activeRun.observer.provider.Error(ctx, "graph run failed",
		observability.Error(runError),
		observability.Int(observability.AttrGraphStep, activeRun.step),
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.RecordError(runError)
		activeRun.observer.rootSpan.SetStatus(observability.StatusError, "graph run failed")
		activeRun.observer.rootSpan.End()
	}
}

// observeRunInterrupted records a run pausing for outside input. A pause is
// the feature working as intended, so the span closes OK.
func (activeRun *run) observeRunInterrupted(ctx context.Context, interruptError *InterruptError, totalDuration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Info(ctx, "graph run interrupted",
		observability.String(observability.AttrGraphNode, interruptError.Node),
		observability.StringSlice("graph.next", interruptError.Next),
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.AddEvent(observability.EventGraphInterrupt,
			observability.String(observability.AttrGraphNode, interruptError.Node),
		)
		activeRun.observer.rootSpan.SetStatus(observability.StatusOK, "graph run interrupted")
		activeRun.observer.rootSpan.End()
	}
}

// observeRunStopped records a stream consumer walking away mid-run.
func (activeRun *run) observeRunStopped(ctx context.Context, totalDuration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Debug(ctx, "graph stream consumer stopped",
		observability.Int(observability.AttrGraphStep, activeRun.step),
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.SetStatus(observability.StatusOK, "stream consumer stopped")
		activeRun.observer.rootSpan.End()
	}
}

// observeStepStart logs the beginning of a super-step with its frontier.
func (activeRun *run) observeStepStart(ctx context.Context, nodes []string) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Debug(ctx, "super-step started",
		observability.Int(observability.AttrGraphStep, activeRun.step),
		observability.Int(observability.AttrGraphTasksCount, len(nodes)),
		observability.StringSlice("graph.nodes", nodes),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.AddEvent(observability.EventGraphStepStart,
			observability.Int(observability.AttrGraphStep, activeRun.step),
			observability.Int(observability.AttrGraphTasksCount, len(nodes)),
		)
	}
}

// observeStepEnd logs the end of a super-step and the size of the next
// frontier.
func (activeRun *run) observeStepEnd(ctx context.Context, nextCount int) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Debug(ctx, "super-step completed",
		observability.Int(observability.AttrGraphStep, activeRun.step),
		observability.Int("graph.next_count", nextCount),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.AddEvent(observability.EventGraphStepEnd,
			observability.Int(observability.AttrGraphStep, activeRun.step),
		)
	}
}

// observeNodeStart opens a child span for one node task and attaches it to
// the task's context. Safe to call from task goroutines; only the task's own
// context is touched.
func (activeRun *run) observeNodeStart(ctx *context.Context, node string) {
	if activeRun.observer.provider == nil {
		return
	}

	var nodeSpan observability.Span
	*ctx, nodeSpan = activeRun.observer.provider.StartSpan(*ctx, observability.SpanGraphNode,
		observability.String(observability.AttrGraphNode, node),
		observability.Int(observability.AttrGraphStep, activeRun.step),
	)
	*ctx = observability.ContextWithSpan(*ctx, nodeSpan)

	activeRun.observer.provider.Debug(*ctx, "node started",
		observability.String(observability.AttrGraphNode, node),
		observability.Int(observability.AttrGraphStep, activeRun.step),
	)
}

// observeNodeCompleted records a successful node task and closes its span.
func (activeRun *run) observeNodeCompleted(ctx context.Context, node string, duration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Histogram(metricGraphNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrGraphNode, node),
	)
	activeRun.observer.provider.Counter(metricGraphNodeCount).Add(ctx, 1,
		observability.String(observability.AttrGraphNode, node),
		observability.String(observability.AttrStatus, "completed"),
	)

	activeRun.observer.provider.Info(ctx, "node completed",
		observability.String(observability.AttrGraphNode, node),
		observability.Duration(observability.AttrDuration, duration),
	)

	nodeSpan := observability.SpanFromContext(ctx)
	if nodeSpan != nil {
		nodeSpan.SetAttributes(observability.Duration(observability.AttrDuration, duration))
		nodeSpan.SetStatus(observability.StatusOK, "node completed")
		nodeSpan.End()
	}
}

// observeNodeFailed records a failed node task and closes its span.
func (activeRun *run) observeNodeFailed(ctx context.Context, node string, nodeError error, duration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Histogram(metricGraphNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrGraphNode, node),
	)
	activeRun.observer.provider.Counter(metricGraphNodeCount).Add(ctx, 1,
		observability.String(observability.AttrGraphNode, node),
		observability.String(observability.AttrStatus, "failed"),
	)

	activeRun.observer.provider.Error(ctx, "node failed",
		observability.String(observability.AttrGraphNode, node),
		observability.Error(nodeError),
		observability.Duration(observability.AttrDuration, duration),
	)

	nodeSpan := observability.SpanFromContext(ctx)
	if nodeSpan != nil {
		nodeSpan.RecordError(nodeError)
		nodeSpan.SetStatus(observability.StatusError, "node failed")
		nodeSpan.End()
	}
}

// observeNodeInterrupted records a node pausing the run via Interrupt and
// closes its span without marking it failed.
func (activeRun *run) observeNodeInterrupted(ctx context.Context, node string, duration time.Duration) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Counter(metricGraphNodeCount).Add(ctx, 1,
		observability.String(observability.AttrGraphNode, node),
		observability.String(observability.AttrStatus, "interrupted"),
	)

	activeRun.observer.provider.Debug(ctx, "node requested interrupt",
		observability.String(observability.AttrGraphNode, node),
	)

	nodeSpan := observability.SpanFromContext(ctx)
	if nodeSpan != nil {
		nodeSpan.AddEvent(observability.EventGraphInterrupt,
			observability.String(observability.AttrGraphNode, node),
		)
		nodeSpan.SetStatus(observability.StatusOK, "node interrupted")
		nodeSpan.SetAttributes(observability.Duration(observability.AttrDuration, duration))
		nodeSpan.End()
	}
}

// observeNodeRetry logs a failed attempt that will be retried.
func (activeRun *run) observeNodeRetry(ctx context.Context, node string, attempt int, attemptError error) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Warn(ctx, "node attempt failed, retrying",
		observability.String(observability.AttrGraphNode, node),
		observability.Int("graph.attempt", attempt),
		observability.Error(attemptError),
	)
}

// observeCheckpointSaved logs a persisted checkpoint.
func (activeRun *run) observeCheckpointSaved(ctx context.Context) {
	if activeRun.observer.provider == nil {
		return
	}

	activeRun.observer.provider.Debug(ctx, "checkpoint saved",
		observability.String(observability.AttrGraphThreadID, activeRun.threadID),
		observability.Int(observability.AttrGraphStep, activeRun.step),
	)

	if activeRun.observer.rootSpan != nil {
		activeRun.observer.rootSpan.AddEvent(observability.EventCheckpointSave,
			observability.Int(observability.AttrCheckpointStep, activeRun.step),
		)
	}
}
