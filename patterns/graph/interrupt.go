package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Interrupt pauses the run to collect a value from outside the graph, such
// as a human approval. On the first execution it aborts the current node and
// surfaces an [InterruptError] carrying the payload from Invoke. When the
// thread is resumed with [WithResume], the node runs again from the top and
// this call returns the operator-supplied value as type T.
//
// Because the node re-executes on resume, work preceding the Interrupt call
// runs twice; keep side effects after it, or make them idempotent.
//
// Requires a checkpointer and a thread id on the run, since the paused state
// must survive between the two Invoke calls.
//
// Example:
//
//	func confirm(ctx context.Context, state graph.State) (any, error) {
//	    amount, _ := graph.Get[float64](state, "amount")
//	    approved, err := graph.Interrupt[bool](ctx, fmt.Sprintf("transfer %.2f?", amount))
//	    if err != nil {
//	        return nil, err
//	    }
//	    return graph.State{"approved": approved}, nil
//	}
func Interrupt[T any](ctx context.Context, payload any) (T, error) {
	var zero T

	cell := resumeCellFromContext(ctx)
	if cell == nil || cell.consumed {
		return zero, &nodeInterrupt{payload: payload}
	}
	cell.consumed = true

	value, err := coerceResume[T](cell.value)
	if err != nil {
		return zero, err
	}
	return value, nil
}

// nodeInterrupt is the internal error a node aborts with when Interrupt has
// no resume value to hand out. The executor translates it into a checkpoint
// plus an InterruptError; it never reaches callers.
type nodeInterrupt struct {
	payload any
}

func (interrupt *nodeInterrupt) Error() string {
	return "node requested an interrupt"
}

// resumeCell carries the operator's resume value into the re-executed node.
// The consumed flag lets a node interrupt again after a resume: the first
// Interrupt call in the re-run gets the value, a later one pauses anew.
type resumeCell struct {
	value    any
	consumed bool
}

type resumeContextKey struct{}

func contextWithResume(ctx context.Context, cell *resumeCell) context.Context {
	return context.WithValue(ctx, resumeContextKey{}, cell)
}

func resumeCellFromContext(ctx context.Context) *resumeCell {
	cell, _ := ctx.Value(resumeContextKey{}).(*resumeCell)
	return cell
}

// coerceResume converts an operator-supplied resume value to the type the
// interrupted node asked for. Checkpoint round-trips and ad hoc operator
// input mean the value rarely arrives as the exact Go type, so numeric
// conversion and a JSON re-decode for structured values are applied before
// giving up.
func coerceResume[T any](raw any) (T, error) {
	var zero T

	if raw == nil {
		return zero, nil
	}
	if typed, ok := raw.(T); ok {
		return typed, nil
	}
	if converted, ok := convertNumeric(raw, reflect.TypeFor[T]()); ok {
		return converted.(T), nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return zero, fmt.Errorf("resume value of type %T is not usable as %T", raw, zero)
	}
	var decoded T
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return zero, fmt.Errorf("resume value of type %T is not usable as %T", raw, zero)
	}
	return decoded, nil
}
