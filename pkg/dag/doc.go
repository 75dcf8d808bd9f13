// Package dag analyzes submitted pipelines: directed graphs of nodes and
// edges that are expected, but not required, to be acyclic.
//
// # Overview
//
// A [Pipeline] is the raw description posted by a client. [Analyze] turns it
// into a [Result] holding the node count, the edge count and whether the
// graph is a directed acyclic graph. Nothing is retained between calls: the
// adjacency structure ([Graph]) is rebuilt for every analysis and dropped
// when the call returns, so concurrent analyses never share state.
//
// # Basic Usage
//
//	res, err := dag.Analyze(dag.Pipeline{
//	    Nodes: []dag.Node{{ID: "input"}, {ID: "llm"}, {ID: "output"}},
//	    Edges: []dag.Edge{
//	        {Source: "input", Target: "llm"},
//	        {Source: "llm", Target: "output"},
//	    },
//	})
//	// res == dag.Result{NumNodes: 3, NumEdges: 2, IsDAG: true}
//
// # Dangling References
//
// References are treated asymmetrically. An edge whose Source is not a
// declared node makes the pipeline unanalyzable and [Analyze] returns an
// error wrapping [ErrUnknownSourceNode]. An edge whose Target is not a
// declared node is kept: the target is a leaf with no outgoing edges.
//
// # Cycle Detection
//
// [Graph.IsAcyclic] performs a depth-first search with white/gray/black
// coloring. The search keeps its own stack of (node, next successor)
// frames instead of recursing, so long chains cannot exhaust the
// goroutine stack. It stops at the first back-edge found and does not
// report which cycle was hit.
//
// # Visualization
//
// [ToDOT] and [RenderSVG] draw a pipeline with Graphviz for inspection from
// the command line.
package dag
