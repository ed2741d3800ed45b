// Package patterns groups the agentic execution strategies built on top of
// the core client: the graph engine for explicit multi-step workflows and the
// ReAct loop for model-driven tool use.
package patterns

import (
	"context"

	"github.com/anshlambagit/agentgraph/core/overview"
)

// Pattern is the contract shared by the execution patterns in this directory:
// run a prompt to completion and return the execution overview with the final
// answer parsed into T.
type Pattern[T any] interface {
	Execute(ctx context.Context, prompt string) (*overview.StructuredOverview[T], error)
}
