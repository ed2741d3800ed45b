package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PathFunc decides where control flows after a node, based on the state as it
// stands after the node's update was merged. It returns the name of the next
// node, a key of the branch's path map, or End.
type PathFunc func(ctx context.Context, state State) (string, error)

// Builder assembles a graph from nodes and edges. Methods are chainable and
// collect validation errors as they go; Compile reports everything at once
// rather than failing on the first mistake.
//
// Example:
//
//	compiled, err := graph.New(graph.Schema{"messages": graph.AddMessages()}).
//	    AddNode("agent", agentNode).
//	    AddNode("tools", toolsNode).
//	    AddEdge(graph.Start, "agent").
//	    AddConditionalEdges("agent", routeAgent, map[string]string{
//	        "tools": "tools",
//	        "done":  graph.End,
//	    }).
//	    AddEdge("tools", "agent").
//	    Compile()
type Builder struct {
	schema      Schema
	options     []Option
	nodes       map[string]*nodeConfig
	nodeOrder   []string
	edges       map[string][]string
	branches    map[string]*branch
	buildErrors []error
}

// nodeConfig is the registered definition of one node.
type nodeConfig struct {
	name       string
	fn         NodeFunc
	timeout    time.Duration
	maxRetries int
}

// branch is a conditional routing decision attached to a source node.
type branch struct {
	path    PathFunc
	targets map[string]string
}

// New starts a builder for a graph over the given state schema. A nil schema
// is legal; every key then behaves as LastValue. Graph-level options are
// applied at Compile time.
func New(schema Schema, opts ...Option) *Builder {
	return &Builder{
		schema:   schema,
		options:  opts,
		nodes:    make(map[string]*nodeConfig),
		edges:    make(map[string][]string),
		branches: make(map[string]*branch),
	}
}

// AddNode registers a named unit of work. Names must be unique and cannot be
// the reserved Start or End endpoints.
func (builder *Builder) AddNode(name string, fn NodeFunc, opts ...NodeOption) *Builder {
	if name == "" {
		builder.buildErrors = append(builder.buildErrors, errors.New("node name cannot be empty"))
		return builder
	}
	if name == Start || name == End {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node name %q is reserved", name))
		return builder
	}
	if _, exists := builder.nodes[name]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node %q is already registered", name))
		return builder
	}
	if fn == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node %q has a nil function", name))
		return builder
	}

	node := &nodeConfig{name: name, fn: fn}
	for _, opt := range opts {
		opt(node)
	}

	builder.nodes[name] = node
	builder.nodeOrder = append(builder.nodeOrder, name)
	return builder
}

// AddEdge registers an unconditional transition from one node to another.
// Use Start as the source for entry edges and End as the target to terminate
// a branch. A node with several outgoing edges activates all of its targets
// in parallel.
func (builder *Builder) AddEdge(from, to string) *Builder {
	if from == End {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("cannot add an edge out of %s", End))
		return builder
	}
	if to == Start {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("cannot add an edge into %s", Start))
		return builder
	}

	builder.edges[from] = append(builder.edges[from], to)
	return builder
}

// AddConditionalEdges attaches a routing function to a source node. After the
// source runs, path is called with the merged state; its return selects the
// next node. When pathMap is non-nil it translates the returned label into a
// node name, and the label set doubles as the declared range of possible
// destinations. With a nil pathMap the returned string is used directly.
//
// A source can carry either static outgoing edges or a conditional branch,
// not both.
func (builder *Builder) AddConditionalEdges(source string, path PathFunc, pathMap map[string]string) *Builder {
	if source == End {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("cannot add a conditional edge out of %s", End))
		return builder
	}
	if path == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("conditional edge on %q has a nil path function", source))
		return builder
	}
	if _, exists := builder.branches[source]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node %q already has a conditional edge", source))
		return builder
	}

	builder.branches[source] = &branch{path: path, targets: pathMap}
	return builder
}

// Compile validates the assembled graph and returns the executable form.
// All collected errors are reported together.
func (builder *Builder) Compile() (*Graph, error) {
	buildErrors := append([]error(nil), builder.buildErrors...)

	isSource := func(name string) bool {
		_, known := builder.nodes[name]
		return known || name == Start
	}
	isTarget := func(name string) bool {
		_, known := builder.nodes[name]
		return known || name == End
	}

	for from, targets := range builder.edges {
		if !isSource(from) {
			buildErrors = append(buildErrors, fmt.Errorf("edge source %q is not a registered node", from))
		}
		for _, to := range targets {
			if !isTarget(to) {
				buildErrors = append(buildErrors, fmt.Errorf("edge target %q is not a registered node", to))
			}
		}
	}

	for source, sourceBranch := range builder.branches {
		if !isSource(source) {
			buildErrors = append(buildErrors, fmt.Errorf("conditional edge source %q is not a registered node", source))
		}
		if len(builder.edges[source]) > 0 {
			buildErrors = append(buildErrors, fmt.Errorf("node %q mixes static edges with a conditional edge", source))
		}
		for label, target := range sourceBranch.targets {
			if !isTarget(target) {
				buildErrors = append(buildErrors, fmt.Errorf("conditional edge on %q maps %q to unknown node %q", source, label, target))
			}
		}
	}

	if len(builder.edges[Start]) == 0 && builder.branches[Start] == nil {
		buildErrors = append(buildErrors, fmt.Errorf("graph has no entry edge from %s", Start))
	}

	if len(buildErrors) > 0 {
		return nil, fmt.Errorf("graph build: %w", errors.Join(buildErrors...))
	}

	config := graphConfig{
		recursionLimit: defaultRecursionLimit,
	}
	for _, opt := range builder.options {
		opt(&config)
	}

	return &Graph{
		schema:    builder.schema,
		nodes:     builder.nodes,
		nodeOrder: builder.nodeOrder,
		edges:     builder.edges,
		branches:  builder.branches,
		config:    config,
	}, nil
}
