// Package graph implements a stateful workflow engine for orchestrating
// multi-step LLM applications. A graph is a set of named nodes wired by
// edges; nodes read a shared [State], return partial updates, and the engine
// merges those updates through per-key reducers declared in a [Schema].
//
// Execution proceeds in super-steps. Every step runs the nodes on the
// current frontier in parallel, merges their updates in deterministic task
// order, then follows static edges, conditional edges, and node-returned
// [Command] and [Send] values to form the next frontier. Cycles are legal:
// an agent loop that bounces between a model node and a tools node runs
// until a conditional edge routes to [End] or the recursion limit trips.
//
// The main entry points are [New] to declare a builder, [Builder.Compile] to
// validate the topology, [Graph.Invoke] to run to completion, and
// [Graph.Stream] to consume execution events as they happen.
//
// Key features:
//   - Parallel fan-out and fan-in with reducer-based state merging
//   - Conditional edges and node-returned commands for dynamic routing
//   - Send dispatch for runtime fan-out over data (one task per work item)
//   - Cycles bounded by a configurable recursion limit
//   - Per-node timeout and automatic retry
//   - Durable runs via checkpoint savers (in-memory, Redis, PostgreSQL)
//   - Human-in-the-loop pauses with [Interrupt], [WithInterruptBefore], and
//     [WithInterruptAfter]
//   - Full observability integration (spans, counters, histograms)
//
// Example (agent loop):
//
//	schema := graph.Schema{"messages": graph.AddMessages()}
//
//	compiled, err := graph.New(schema).
//	    AddNode("agent", callModel).
//	    AddNode("tools", runTools).
//	    AddEdge(graph.Start, "agent").
//	    AddConditionalEdges("agent", routeOnToolCalls, map[string]string{
//	        "tools": "tools",
//	        "end":   graph.End,
//	    }).
//	    AddEdge("tools", "agent").
//	    Compile()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	finalState, err := compiled.Invoke(ctx, graph.State{
//	    "messages": []ai.Message{{Role: ai.RoleUser, Content: "What is 6*7?"}},
//	})
//
// Example (streaming a checkpointed thread):
//
//	compiled, err := graph.New(schema, graph.WithCheckpointer(memsaver.New())).
//	    AddNode("chat", chat).
//	    AddEdge(graph.Start, "chat").
//	    Compile()
//
//	for event, err := range compiled.Stream(ctx, input, graph.WithThreadID("user-42")) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if event.Type == graph.EventNodeComplete {
//	        fmt.Printf("%s: %v\n", event.Node, event.Update)
//	    }
//	}
//
// TODO: SubGraph support (compiled graphs mounted as nodes of a parent graph).
package graph
