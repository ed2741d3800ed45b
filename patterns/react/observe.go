package react

import (
	"context"

	"github.com/anshlambagit/agentgraph/core/client"
	"github.com/anshlambagit/agentgraph/internal/utils"
	"github.com/anshlambagit/agentgraph/providers/observability"
)

// Span, metric and attribute names for the ReAct pattern.
const (
	spanReactExecute = "react.execute"

	metricReactExecutions        = "react.executions.total"
	metricReactExecutionDuration = "react.execution.duration"

	attrReactIteration     = "react.iteration"
	attrReactMaxIterations = "react.max_iterations"
)

// reactRun carries the per-invocation observability state: the resolved
// provider, the execution span, and the whole-run timer. A nil provider
// disables every helper.
type reactRun struct {
	observer  observability.Provider
	span      observability.Span
	execTimer *utils.Timer
}

// newReactRun resolves the observer (client configuration first, ambient
// context second) and opens the execution span. ctx is updated in place so
// the span and observer are visible to everything the run touches.
func newReactRun(ctx *context.Context, baseClient *client.Client, maxIterations int) *reactRun {
	observer := baseClient.Observer()
	if observer == nil {
		observer = observability.ObserverFromContext(*ctx)
	}
	if observer == nil {
		return &reactRun{}
	}

	newCtx, span := observer.StartSpan(*ctx, spanReactExecute,
		observability.Int(attrReactMaxIterations, maxIterations),
	)
	newCtx = observability.ContextWithSpan(newCtx, span)
	newCtx = observability.ContextWithObserver(newCtx, observer)
	*ctx = newCtx

	return &reactRun{
		observer:  observer,
		span:      span,
		execTimer: utils.NewTimer(),
	}
}

// recordOutcome records the execution counter and duration histogram for a
// finished run. Only called with a resolved observer.
func (r *reactRun) recordOutcome(ctx context.Context, status string) {
	r.execTimer.Stop()

	r.observer.Counter(metricReactExecutions).Add(ctx, 1,
		observability.String(observability.AttrStatus, status),
	)
	r.observer.Histogram(metricReactExecutionDuration).Record(ctx, r.execTimer.GetDuration().Seconds(),
		observability.String(observability.AttrStatus, status),
	)
}

// observeIterationStart logs the beginning of a reasoning iteration.
func (r *reactRun) observeIterationStart(ctx context.Context, iteration int) {
	if r.observer == nil {
		return
	}

	r.observer.Debug(ctx, "ReAct iteration started",
		observability.Int(attrReactIteration, iteration),
	)
}

// observeIterationError records a failed model turn and closes out the run.
func (r *reactRun) observeIterationError(ctx context.Context, iteration int, iterationTimer *utils.Timer, err error) {
	if r.observer == nil {
		return
	}

	r.span.RecordError(err)
	r.span.SetStatus(observability.StatusError, "iteration failed")
	r.span.End()

	r.observer.Error(ctx, "Iteration failed",
		observability.Error(err),
		observability.Int(attrReactIteration, iteration),
		observability.Duration(observability.AttrDuration, iterationTimer.GetDuration()),
	)

	r.recordOutcome(ctx, "error")
}

// observeToolNotFound logs a tool call that has no registered tool.
func (r *reactRun) observeToolNotFound(ctx context.Context, toolName string, err error) {
	if r.observer == nil {
		return
	}

	r.observer.Error(ctx, "Tool call failed - not found",
		observability.String(observability.AttrToolName, toolName),
		observability.Error(err),
	)
}

// observeToolFailed logs a tool call whose execution returned an error.
func (r *reactRun) observeToolFailed(ctx context.Context, toolName string, toolTimer *utils.Timer, err error) {
	if r.observer == nil {
		return
	}

	r.observer.Error(ctx, "Tool call failed",
		observability.String(observability.AttrToolName, toolName),
		observability.Duration(observability.AttrToolDuration, toolTimer.GetDuration()),
		observability.Error(err),
	)
}

// observeToolCompleted logs a successful tool execution.
func (r *reactRun) observeToolCompleted(ctx context.Context, toolName string, toolTimer *utils.Timer) {
	if r.observer == nil {
		return
	}

	r.observer.Debug(ctx, "Tool call completed",
		observability.String(observability.AttrToolName, toolName),
		observability.Duration(observability.AttrToolDuration, toolTimer.GetDuration()),
	)
}

// observeToolError records the tool failure that is about to stop the loop.
func (r *reactRun) observeToolError(ctx context.Context, toolName string, err error) {
	if r.observer == nil {
		return
	}

	r.span.RecordError(err)
	r.observer.Error(ctx, "Tool execution failed, stopping ReAct loop",
		observability.String(observability.AttrToolName, toolName),
		observability.Error(err),
	)
}

// observeStopOnError closes out a run terminated by stop-on-error.
func (r *reactRun) observeStopOnError(ctx context.Context, err error) {
	if r.observer == nil {
		return
	}

	r.span.SetStatus(observability.StatusError, "tool execution failed")
	r.span.End()

	r.observer.Error(ctx, "ReAct pattern terminated due to tool error",
		observability.Error(err),
	)

	r.recordOutcome(ctx, "error")
}

// observeMaxIteration closes out a run that exhausted its iteration budget.
func (r *reactRun) observeMaxIteration(ctx context.Context, maxIterations int) {
	if r.observer == nil {
		return
	}

	r.span.SetStatus(observability.StatusError, "max iterations reached")
	r.span.End()

	r.observer.Warn(ctx, "ReAct loop hit max iterations without a final answer",
		observability.Int(attrReactMaxIterations, maxIterations),
	)

	r.recordOutcome(ctx, "max_iterations")
}

// observeParseError records a final answer that could not be parsed into the
// target type. Not terminal: the caller decides whether a retry follows.
func (r *reactRun) observeParseError(ctx context.Context, err error) {
	if r.observer == nil {
		return
	}

	r.span.RecordError(err)
	r.observer.Error(ctx, "Failed to parse final answer",
		observability.Error(err),
	)
}

// observeRequestingStructuredFinalAnswer logs the schema-bound retry request.
func (r *reactRun) observeRequestingStructuredFinalAnswer(ctx context.Context) {
	if r.observer == nil {
		return
	}

	r.observer.Info(ctx, "Requesting structured final answer")
}

// observeFailure closes out a run that failed after the reasoning loop itself
// finished.
func (r *reactRun) observeFailure(ctx context.Context, message string, err error) {
	if r.observer == nil {
		return
	}

	r.span.RecordError(err)
	r.span.SetStatus(observability.StatusError, message)
	r.span.End()

	r.observer.Error(ctx, message, observability.Error(err))

	r.recordOutcome(ctx, "error")
}

// observeSuccess closes out a run that produced a parsed final answer.
func (r *reactRun) observeSuccess(ctx context.Context) {
	if r.observer == nil {
		return
	}

	r.span.SetStatus(observability.StatusOK, "completed")
	r.span.End()

	r.observer.Info(ctx, "ReAct loop completed")

	r.recordOutcome(ctx, "success")
}
