package graph

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anshlambagit/agentgraph/providers/checkpoint/memsaver"
)

// collectStream drains a stream, returning the events seen and the terminal
// error, if any.
func collectStream(testingHelper *testing.T, compiled *Graph, initial State, opts ...InvokeOption) ([]Event, error) {
	testingHelper.Helper()

	var events []Event
	for event, err := range compiled.Stream(context.Background(), initial, opts...) {
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for index, event := range events {
		types[index] = event.Type
	}
	return types
}

func assertTypes(testingHelper *testing.T, events []Event, expected []EventType) {
	testingHelper.Helper()

	got := eventTypes(events)
	if len(got) != len(expected) {
		testingHelper.Fatalf("expected %d events %v, got %d events %v", len(expected), expected, len(got), got)
	}
	for index := range expected {
		if got[index] != expected[index] {
			testingHelper.Fatalf("event %d: expected %s, got %s (full: %v)", index, expected[index], got[index], got)
		}
	}
}

func TestStream_LinearEventOrder(testCase *testing.T) {
	compiled := mustCompile(testCase, New(nil).
		AddNode("a", setNode(State{"a": "done"})).
		AddNode("b", setNode(State{"b": "done"})).
		AddEdge(Start, "a").
		AddEdge("a", "b"))

	events, err := collectStream(testCase, compiled, nil)
	if err != nil {
		testCase.Fatalf("stream failed: %v", err)
	}

	assertTypes(testCase, events, []EventType{
		EventGraphStart,
		EventStepStart,
		EventNodeStart,
		EventNodeComplete,
		EventValues,
		EventStepStart,
		EventNodeStart,
		EventNodeComplete,
		EventValues,
		EventDone,
	})

	if events[2].Node != "a" || events[3].Node != "a" {
		testCase.Errorf("expected first step to cover node a, got %q/%q", events[2].Node, events[3].Node)
	}
	if events[6].Node != "b" || events[7].Node != "b" {
		testCase.Errorf("expected second step to cover node b, got %q/%q", events[6].Node, events[7].Node)
	}

	if events[1].Step != 1 || events[5].Step != 2 {
		testCase.Errorf("expected step numbers 1 and 2, got %d and %d", events[1].Step, events[5].Step)
	}

	if got, _ := Get[string](events[3].Update, "a"); got != "done" {
		testCase.Errorf("expected node_complete to carry the update, got %v", events[3].Update)
	}

	firstValues := events[4].Values
	if _, exists := firstValues["a"]; !exists {
		testCase.Error("expected first values event to hold a's merge")
	}
	if _, exists := firstValues["b"]; exists {
		testCase.Error("expected first values event to predate b")
	}

	done := events[len(events)-1]
	if done.Step != 2 {
		testCase.Errorf("expected done at step 2, got %d", done.Step)
	}
	if got, _ := Get[string](done.Values, "b"); got != "done" {
		testCase.Errorf("expected done to carry the final state, got %v", done.Values)
	}
}

func TestStream_UpdatesModeSkipsValues(testCase *testing.T) {
	compiled := mustCompile(testCase, New(nil).
		AddNode("a", setNode(State{"a": 1})).
		AddNode("b", setNode(State{"b": 2})).
		AddEdge(Start, "a").
		AddEdge("a", "b"))

	events, err := collectStream(testCase, compiled, nil, WithStreamMode(StreamUpdates))
	if err != nil {
		testCase.Fatalf("stream failed: %v", err)
	}

	assertTypes(testCase, events, []EventType{
		EventGraphStart,
		EventStepStart,
		EventNodeStart,
		EventNodeComplete,
		EventStepStart,
		EventNodeStart,
		EventNodeComplete,
		EventDone,
	})

	if got, _ := Get[int](events[3].Update, "a"); got != 1 {
		testCase.Errorf("expected update for a, got %v", events[3].Update)
	}
	if got, _ := Get[int](events[6].Update, "b"); got != 2 {
		testCase.Errorf("expected update for b, got %v", events[6].Update)
	}
}

func TestStream_ParallelStartsPrecedeCompletions(testCase *testing.T) {
	compiled := mustCompile(testCase, New(Schema{"parts": Append()}).
		AddNode("fan", setNode(nil)).
		AddNode("left", setNode(State{"parts": "left"})).
		AddNode("right", setNode(State{"parts": "right"})).
		AddEdge(Start, "fan").
		AddEdge("fan", "left").
		AddEdge("fan", "right"))

	events, err := collectStream(testCase, compiled, nil, WithStreamMode(StreamUpdates))
	if err != nil {
		testCase.Fatalf("stream failed: %v", err)
	}

	var secondStep []Event
	for _, event := range events {
		if event.Step == 2 && (event.Type == EventNodeStart || event.Type == EventNodeComplete) {
			secondStep = append(secondStep, event)
		}
	}

	assertTypes(testCase, secondStep, []EventType{
		EventNodeStart,
		EventNodeStart,
		EventNodeComplete,
		EventNodeComplete,
	})
	if secondStep[0].Node != "left" || secondStep[1].Node != "right" {
		testCase.Errorf("expected starts in task order, got %q then %q", secondStep[0].Node, secondStep[1].Node)
	}
	if secondStep[2].Node != "left" || secondStep[3].Node != "right" {
		testCase.Errorf("expected completions in task order, got %q then %q", secondStep[2].Node, secondStep[3].Node)
	}
}

func TestStream_ErrorYieldedLast(testCase *testing.T) {
	compiled := mustCompile(testCase, New(nil).
		AddNode("boom", func(_ context.Context, _ State) (any, error) {
			return nil, errors.New("exploded")
		}).
		AddEdge(Start, "boom"))

	events, err := collectStream(testCase, compiled, nil)
	if err == nil {
		testCase.Fatal("expected terminal error")
	}
	if !strings.Contains(err.Error(), `node "boom"`) {
		testCase.Errorf("expected node failure error, got: %v", err)
	}

	assertTypes(testCase, events, []EventType{
		EventGraphStart,
		EventStepStart,
		EventNodeStart,
	})
}

func TestStream_BreakStopsExecution(testCase *testing.T) {
	var secondRan atomic.Bool

	compiled := mustCompile(testCase, New(nil).
		AddNode("first", setNode(State{"first": true})).
		AddNode("second", func(_ context.Context, _ State) (any, error) {
			secondRan.Store(true)
			return nil, nil
		}).
		AddEdge(Start, "first").
		AddEdge("first", "second"))

	for event, err := range compiled.Stream(context.Background(), nil) {
		if err != nil {
			testCase.Fatalf("unexpected error: %v", err)
		}
		if event.Type == EventNodeComplete {
			break
		}
	}

	if secondRan.Load() {
		testCase.Error("expected breaking the loop to stop the run before the second node")
	}
}

func TestStream_InterruptEventThenResume(testCase *testing.T) {
	saver := memsaver.New()

	compiled := mustCompile(testCase, New(nil,
		WithCheckpointer(saver),
		WithInterruptBefore("apply"),
	).
		AddNode("propose", setNode(State{"proposal": "v1"})).
		AddNode("apply", setNode(State{"applied": true})).
		AddEdge(Start, "propose").
		AddEdge("propose", "apply"))

	events, err := collectStream(testCase, compiled, State{}, WithThreadID("t"))
	interruptError, ok := AsInterrupt(err)
	if !ok {
		testCase.Fatalf("expected interrupt error, got: %v", err)
	}
	if interruptError.Node != "apply" {
		testCase.Errorf("expected pause at apply, got %q", interruptError.Node)
	}

	last := events[len(events)-1]
	if last.Type != EventInterrupt {
		testCase.Fatalf("expected trailing interrupt event, got %s", last.Type)
	}
	if last.Interrupt == nil || last.Interrupt.Node != "apply" {
		testCase.Errorf("expected interrupt details on the event, got %+v", last.Interrupt)
	}

	resumed, err := collectStream(testCase, compiled, nil, WithThreadID("t"))
	if err != nil {
		testCase.Fatalf("resume stream failed: %v", err)
	}

	if resumed[0].Type != EventGraphStart || resumed[0].Step != 1 {
		testCase.Errorf("expected resumed stream to open at the restored step, got %s step %d", resumed[0].Type, resumed[0].Step)
	}

	done := resumed[len(resumed)-1]
	if done.Type != EventDone {
		testCase.Fatalf("expected resumed stream to finish, got %s", done.Type)
	}
	if got, _ := Get[bool](done.Values, "applied"); !got {
		testCase.Error("expected resumed run to apply")
	}
}

func TestStream_PrepareErrorYieldedImmediately(testCase *testing.T) {
	compiled := mustCompile(testCase, New(nil).
		AddNode("a", setNode(nil)).
		AddEdge(Start, "a"))

	events, err := collectStream(testCase, compiled, nil, WithResume(true))
	if err == nil {
		testCase.Fatal("expected prepare error")
	}
	if !strings.Contains(err.Error(), "no checkpoint to resume from") {
		testCase.Errorf("expected resume error, got: %v", err)
	}
	if len(events) != 0 {
		testCase.Errorf("expected no events before the error, got %v", eventTypes(events))
	}
}

func TestStream_ValuesAccumulateAcrossSteps(testCase *testing.T) {
	compiled := mustCompile(testCase, New(Schema{"log": Append()}).
		AddNode("one", setNode(State{"log": "one"})).
		AddNode("two", setNode(State{"log": "two"})).
		AddEdge(Start, "one").
		AddEdge("one", "two"))

	events, err := collectStream(testCase, compiled, nil)
	if err != nil {
		testCase.Fatalf("stream failed: %v", err)
	}

	var valuesEvents []Event
	for _, event := range events {
		if event.Type == EventValues {
			valuesEvents = append(valuesEvents, event)
		}
	}
	if len(valuesEvents) != 2 {
		testCase.Fatalf("expected 2 values events, got %d", len(valuesEvents))
	}

	firstLog, _ := Get[[]string](valuesEvents[0].Values, "log")
	if len(firstLog) != 1 || firstLog[0] != "one" {
		testCase.Errorf("expected first snapshot [one], got %v", firstLog)
	}

	secondLog, _ := Get[[]string](valuesEvents[1].Values, "log")
	if len(secondLog) != 2 || secondLog[1] != "two" {
		testCase.Errorf("expected second snapshot [one two], got %v", secondLog)
	}
}

func TestStream_RecursionLimitSurfaces(testCase *testing.T) {
	compiled := mustCompile(testCase, New(nil, WithRecursionLimit(2)).
		AddNode("loop", setNode(nil)).
		AddEdge(Start, "loop").
		AddEdge("loop", "loop"))

	_, err := collectStream(testCase, compiled, nil)
	if err == nil {
		testCase.Fatal("expected recursion error")
	}

	var recursionError *RecursionError
	if !errors.As(err, &recursionError) {
		testCase.Fatalf("expected *RecursionError, got %T: %v", err, err)
	}
}
