package dag

// frame is one level of the explicit DFS stack: the node being explored
// and the index of the next successor to visit.
type frame struct {
	node string
	next int
}

// traversal holds the state of a single acyclicity scan. It is created by
// [Graph.IsAcyclic] and discarded when the scan returns.
type traversal struct {
	g       *Graph
	visited map[string]bool // explored, or currently being explored
	onStack map[string]bool // on the active DFS path
	stack   []frame
}

// IsAcyclic reports whether g contains no directed cycle.
//
// It runs a depth-first search with three states (unvisited, on the active
// path, done) using an explicit stack, so the depth of the graph is not
// limited by the goroutine call stack. Nodes are scanned in first-seen
// order and the scan stops at the first back-edge. Which cycle triggers
// the verdict is not specified.
//
// Runs in O(N+E) time.
func (g *Graph) IsAcyclic() bool {
	t := &traversal{
		g:       g,
		visited: make(map[string]bool, len(g.order)),
		onStack: make(map[string]bool),
	}
	for _, id := range g.order {
		if t.visited[id] {
			continue
		}
		if !t.explore(id) {
			return false
		}
	}
	return true
}

// explore walks everything reachable from root. It returns false as soon
// as a successor already on the active path is reached. On that early
// return onStack is left dirty; the traversal is abandoned by the caller.
func (t *traversal) explore(root string) bool {
	if !t.enter(root) {
		return false
	}
	for len(t.stack) > 0 {
		top := &t.stack[len(t.stack)-1]
		succ := t.g.outgoing[top.node]
		if top.next == len(succ) {
			delete(t.onStack, top.node)
			t.stack = t.stack[:len(t.stack)-1]
			continue
		}
		child := succ[top.next]
		top.next++
		if !t.enter(child) {
			return false
		}
	}
	return true
}

// enter applies the per-node checks of the search. It returns false when
// id is on the active path (a back-edge). A node that is already visited
// is skipped; any other node is marked visited and pushed.
func (t *traversal) enter(id string) bool {
	if t.onStack[id] {
		return false
	}
	if t.visited[id] {
		return true
	}
	t.visited[id] = true
	t.onStack[id] = true
	t.stack = append(t.stack, frame{node: id})
	return true
}
