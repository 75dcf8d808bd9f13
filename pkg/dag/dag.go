package dag

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSourceNode is returned by [NewGraph] and [Analyze] when an
	// edge's Source does not name any node in the pipeline. Unknown targets
	// are not an error: they are treated as nodes with no outgoing edges.
	ErrUnknownSourceNode = errors.New("unknown source node")
)

// Node is a vertex of a submitted pipeline. Its ID is the only attribute.
type Node struct {
	ID string `json:"id"`
}

// Edge is a directed connection from Source to Target. Multiple edges
// between the same pair are permitted and each one is counted.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Pipeline is the graph description submitted for analysis.
//
// Node IDs are expected to be unique. Duplicates are not rejected: they bind
// the same adjacency entry again and are still counted in [Result.NumNodes].
type Pipeline struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Result holds the structural facts reported for a pipeline.
type Result struct {
	NumNodes int  `json:"num_nodes"`
	NumEdges int  `json:"num_edges"`
	IsDAG    bool `json:"is_dag"`
}

// Graph is the adjacency structure derived from a [Pipeline]. It is built
// fresh for every analysis and never shared between callers.
//
// The zero value is an empty graph. Graph is not safe for concurrent
// mutation, but it is never mutated after [NewGraph] returns.
type Graph struct {
	order    []string            // node IDs in first-seen order
	outgoing map[string][]string // nodeID -> successor IDs, edge order
}

// NewGraph builds the adjacency structure for p.
//
// Every node receives an empty successor list; every edge appends its
// Target to its Source's list. An edge whose Source is not a node returns
// an error wrapping [ErrUnknownSourceNode]. Targets that are not nodes are
// still recorded as successors.
func NewGraph(p Pipeline) (*Graph, error) {
	g := &Graph{
		order:    make([]string, 0, len(p.Nodes)),
		outgoing: make(map[string][]string, len(p.Nodes)),
	}
	for _, n := range p.Nodes {
		if _, seen := g.outgoing[n.ID]; !seen {
			g.order = append(g.order, n.ID)
		}
		g.outgoing[n.ID] = nil
	}
	for i, e := range p.Edges {
		succ, ok := g.outgoing[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %d (%q -> %q): %w", i, e.Source, e.Target, ErrUnknownSourceNode)
		}
		g.outgoing[e.Source] = append(succ, e.Target)
	}
	return g, nil
}

// NodeIDs returns the distinct node IDs in the order they were first seen.
func (g *Graph) NodeIDs() []string { return g.order }

// Successors returns the targets of id's outgoing edges in edge order.
// Returns nil for a node with no outgoing edges or an id that is not a
// node. The returned slice must not be modified.
func (g *Graph) Successors(id string) []string { return g.outgoing[id] }

// HasNode reports whether id was declared as a node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.outgoing[id]
	return ok
}

// Analyze reports the node count, edge count and DAG verdict for p.
//
// Counts are taken from the submitted lists as-is, so duplicate node IDs
// and parallel edges are all counted. If an edge references an unknown
// source node, Analyze returns an error wrapping [ErrUnknownSourceNode]
// and no result.
func Analyze(p Pipeline) (Result, error) {
	g, err := NewGraph(p)
	if err != nil {
		return Result{}, err
	}
	return Result{
		NumNodes: len(p.Nodes),
		NumEdges: len(p.Edges),
		IsDAG:    g.IsAcyclic(),
	}, nil
}
