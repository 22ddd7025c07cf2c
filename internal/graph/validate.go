package graph

import (
	"container/heap"
)

// Validate rejects graphs the rewrite pass cannot reason about:
//   - empty or duplicate node names
//   - inputs referencing unknown nodes
//   - data inputs addressing a slot the producer does not declare
//   - data inputs listed after a control input
//   - any cycle over data or control edges
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if n.Name == "" {
			return invalidf("node name is required")
		}
		if seen[n.Name] {
			return invalidf("duplicate node name: %q", n.Name)
		}
		seen[n.Name] = true
	}

	for _, n := range g.nodes {
		sawControl := false
		for _, raw := range n.Inputs {
			in := ParseInput(raw)
			if in.Node == "" {
				return invalidf("node %q has an empty input", n.Name)
			}
			p, ok := g.Node(in.Node)
			if !ok {
				return invalidf("node %q references unknown input %q", n.Name, raw)
			}
			if in.Control {
				sawControl = true
				continue
			}
			if sawControl {
				return invalidf("node %q lists data input %q after a control input", n.Name, raw)
			}
			if in.Slot >= p.Outputs() {
				return invalidf("node %q reads slot %d of %q, which declares %d outputs", n.Name, in.Slot, p.Name, p.Outputs())
			}
		}
	}

	order := g.topoOrderIndices()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.findCycleDeterministic())
}

// TopoOrder returns nodes ordered so that every producer, data or control,
// precedes its consumers. Ties keep arena order.
func (g *Graph) TopoOrder() ([]*Node, error) {
	order := g.topoOrderIndices()
	if len(order) != len(g.nodes) {
		return nil, cycleError(g.findCycleDeterministic())
	}
	out := make([]*Node, len(order))
	for i, idx := range order {
		out[i] = g.nodes[idx]
	}
	return out, nil
}

// adjacency returns, per arena index, the sorted distinct consumer indices.
func (g *Graph) adjacency() (outgoing [][]int, indeg []int) {
	outgoing = make([][]int, len(g.nodes))
	indeg = make([]int, len(g.nodes))
	for to, n := range g.nodes {
		seen := make(map[int]bool)
		for _, raw := range n.Inputs {
			from, ok := g.nameIndex[ParseInput(raw).Node]
			if !ok || seen[from] {
				continue
			}
			seen[from] = true
			outgoing[from] = append(outgoing[from], to)
			indeg[to]++
		}
	}
	return outgoing, indeg
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm with a min-heap ready queue so the
// order is deterministic.
func (g *Graph) topoOrderIndices() []int {
	outgoing, indeg := g.adjacency()

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycleDeterministic returns one stable cycle witness as node names,
// first node repeated at the end.
func (g *Graph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	outgoing, _ := g.adjacency()
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v closes v ... u -> v.
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].Name)
	}
	return out
}
