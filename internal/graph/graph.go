package graph

// Graph owns every node in an ordered arena. Edges are name/slot references
// resolved through the name index, so rewiring is a plain data update.
type Graph struct {
	nodes []*Node

	// Index for lookup: Name -> position in nodes.
	nameIndex map[string]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     []*Node{},
		nameIndex: make(map[string]int),
	}
}

// AddNode appends n. Names must be non-empty and unique.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.Name == "" {
		return invalidf("node name is required")
	}
	if _, exists := g.nameIndex[n.Name]; exists {
		return invalidf("duplicate node name: %q", n.Name)
	}
	g.nameIndex[n.Name] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// Prepend inserts nodes ahead of all existing nodes, keeping their order.
func (g *Graph) Prepend(nodes ...*Node) error {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Name == "" {
			return invalidf("node name is required")
		}
		if _, exists := g.nameIndex[n.Name]; exists || seen[n.Name] {
			return invalidf("duplicate node name: %q", n.Name)
		}
		seen[n.Name] = true
	}
	g.nodes = append(append([]*Node(nil), nodes...), g.nodes...)
	g.RebuildIndices()
	return nil
}

// RebuildIndices recomputes the name index from the arena.
func (g *Graph) RebuildIndices() {
	g.nameIndex = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.nameIndex[n.Name] = i
	}
}

// Node looks a node up by name.
func (g *Graph) Node(name string) (*Node, bool) {
	i, ok := g.nameIndex[name]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Has reports whether a node with this name exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.nameIndex[name]
	return ok
}

// Nodes returns the nodes in arena order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

func (g *Graph) Len() int { return len(g.nodes) }

// Names returns node names in arena order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Name
	}
	return out
}

// Clone deep-copies the graph, preserving order.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:     make([]*Node, len(g.nodes)),
		nameIndex: make(map[string]int, len(g.nodes)),
	}
	for i, n := range g.nodes {
		c.nodes[i] = n.Clone()
		c.nameIndex[n.Name] = i
	}
	return c
}

// Consumers returns every input edge, data or control, that references name.
func (g *Graph) Consumers(name string) []Consumer {
	var out []Consumer
	for _, n := range g.nodes {
		for i, raw := range n.Inputs {
			in := ParseInput(raw)
			if in.Node != name {
				continue
			}
			out = append(out, Consumer{Node: n.Name, Index: i, Slot: in.Slot, Control: in.Control})
		}
	}
	return out
}

// GetDependencies returns the producers of n's inputs, data and control, in
// input order without duplicates.
func (g *Graph) GetDependencies(name string) []*Node {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	var deps []*Node
	seen := make(map[string]bool)
	for _, raw := range n.Inputs {
		in := ParseInput(raw)
		if seen[in.Node] {
			continue
		}
		seen[in.Node] = true
		if p, ok := g.Node(in.Node); ok {
			deps = append(deps, p)
		}
	}
	return deps
}

// GetDependents returns every node with an input referencing name.
func (g *Graph) GetDependents(name string) []*Node {
	var deps []*Node
	seen := make(map[string]bool)
	for _, c := range g.Consumers(name) {
		if seen[c.Node] {
			continue
		}
		seen[c.Node] = true
		if n, ok := g.Node(c.Node); ok {
			deps = append(deps, n)
		}
	}
	return deps
}

// AncestorClosure returns root together with its data ancestors, ancestors
// first. A producer is always included, but its own inputs are only explored
// when follow returns true for it. Control inputs are not followed.
func (g *Graph) AncestorClosure(root string, follow func(*Node) bool) []*Node {
	var out []*Node
	visited := make(map[string]bool)

	var visit func(n *Node, expand bool)
	visit = func(n *Node, expand bool) {
		if visited[n.Name] {
			return
		}
		visited[n.Name] = true
		if expand {
			for _, in := range n.DataInputs() {
				p, ok := g.Node(in.Node)
				if !ok {
					continue
				}
				visit(p, follow == nil || follow(p))
			}
		}
		out = append(out, n)
	}

	if n, ok := g.Node(root); ok {
		visit(n, true)
	}
	return out
}
