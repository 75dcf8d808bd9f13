package dag

import (
	"fmt"
	"testing"
)

func chain(n int, closed bool) Pipeline {
	p := Pipeline{Nodes: make([]Node, n)}
	for i := 0; i < n; i++ {
		p.Nodes[i] = Node{ID: fmt.Sprintf("n%d", i)}
		if i > 0 {
			p.Edges = append(p.Edges, Edge{Source: p.Nodes[i-1].ID, Target: p.Nodes[i].ID})
		}
	}
	if closed && n > 0 {
		p.Edges = append(p.Edges, Edge{Source: p.Nodes[n-1].ID, Target: p.Nodes[0].ID})
	}
	return p
}

func mustGraph(t *testing.T, p Pipeline) *Graph {
	t.Helper()
	g, err := NewGraph(p)
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	return g
}

func TestIsAcyclic_Chains(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 26} {
		if !mustGraph(t, chain(n, false)).IsAcyclic() {
			t.Errorf("chain(%d) IsAcyclic() = false, want true", n)
		}
		if mustGraph(t, chain(n, true)).IsAcyclic() {
			t.Errorf("closed chain(%d) IsAcyclic() = true, want false", n)
		}
	}
}

func TestIsAcyclic_DeepChain(t *testing.T) {
	// Deep enough that a naive recursive walk would be a concern.
	const depth = 200_000
	if !mustGraph(t, chain(depth, false)).IsAcyclic() {
		t.Error("deep chain IsAcyclic() = false, want true")
	}
	if mustGraph(t, chain(depth, true)).IsAcyclic() {
		t.Error("deep closed chain IsAcyclic() = true, want false")
	}
}

func TestIsAcyclic_ReverseDeclarationOrder(t *testing.T) {
	// Nodes declared leaf-first so later roots hit already-visited subtrees.
	p := Pipeline{
		Nodes: nodes("d", "c", "b", "a"),
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "d"},
			{Source: "a", Target: "d"},
		},
	}
	if !mustGraph(t, p).IsAcyclic() {
		t.Error("IsAcyclic() = false, want true")
	}
}

func TestIsAcyclic_CrossEdgeIntoFinishedSubtree(t *testing.T) {
	// b is finished before c reaches it; that must not be read as a cycle.
	p := Pipeline{
		Nodes: nodes("a", "b", "c"),
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "c", Target: "b"},
		},
	}
	if !mustGraph(t, p).IsAcyclic() {
		t.Error("IsAcyclic() = false, want true")
	}
}

func TestIsAcyclic_CycleBehindDanglingTarget(t *testing.T) {
	p := Pipeline{
		Nodes: nodes("a", "b"),
		Edges: []Edge{
			{Source: "a", Target: "ghost"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	if mustGraph(t, p).IsAcyclic() {
		t.Error("IsAcyclic() = true, want false")
	}
}

func TestIsAcyclic_SelfLoopAmongOthers(t *testing.T) {
	p := Pipeline{
		Nodes: nodes("a", "b", "c"),
		Edges: []Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "c"},
		},
	}
	if mustGraph(t, p).IsAcyclic() {
		t.Error("IsAcyclic() = true, want false")
	}
}

func BenchmarkIsAcyclic_Chain(b *testing.B) {
	g, err := NewGraph(chain(10_000, false))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.IsAcyclic()
	}
}
