package fold

import (
	"sort"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// Kind is the analyzer's verdict for one node.
type Kind int

const (
	Neither Kind = iota
	Foldable
	ShapeMaterializable
)

func (k Kind) String() string {
	switch k {
	case Foldable:
		return "foldable"
	case ShapeMaterializable:
		return "shape_materializable"
	}
	return "neither"
}

// Classification maps node names to their verdict. Absent names are Neither.
type Classification map[string]Kind

// Count returns how many nodes carry kind k.
func (c Classification) Count(k Kind) int {
	n := 0
	for _, v := range c {
		if v == k {
			n++
		}
	}
	return n
}

// eligible reports whether n could be Foldable given constant inputs.
func eligible(n *graph.Node) bool {
	return ops.IsFoldableKind(n.Op) && n.Outputs() > 0 && len(n.DataInputs()) > 0
}

// Classify labels every node of g. Foldability is a forward worklist
// propagation seeded at literal nodes: a node becomes Foldable once every
// distinct data producer is a literal or Foldable. Control inputs play no
// part. Shape queries whose relevant input shape is statically known are
// ShapeMaterializable instead, whatever their foldability. oracle may be nil.
func Classify(g *graph.Graph, oracle ShapeOracle) Classification {
	cls := make(Classification, g.Len())
	pending := make(map[string]int)
	dataConsumers := make(map[string][]string)

	for _, n := range g.Nodes() {
		if !eligible(n) {
			continue
		}
		producers := make(map[string]bool)
		for _, in := range n.DataInputs() {
			if producers[in.Node] {
				continue
			}
			producers[in.Node] = true
			dataConsumers[in.Node] = append(dataConsumers[in.Node], n.Name)
		}
		pending[n.Name] = len(producers)
	}

	var worklist []string
	for _, n := range g.Nodes() {
		if ops.IsLiteral(n.Op) {
			worklist = append(worklist, n.Name)
		}
	}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		for _, c := range dataConsumers[cur] {
			pending[c]--
			if pending[c] == 0 {
				cls[c] = Foldable
				worklist = append(worklist, c)
			}
		}
	}

	if oracle != nil {
		for _, n := range g.Nodes() {
			if _, ok := shapeSource(g, n, oracle); ok {
				cls[n.Name] = ShapeMaterializable
			}
		}
	}
	return cls
}

// shapeSource returns the static shape of the single data input of a shape
// query when it is known well enough to answer the query.
func shapeSource(g *graph.Graph, n *graph.Node, oracle ShapeOracle) (ShapeCandidate, bool) {
	if !ops.IsShapeQuery(n.Op) {
		return ShapeCandidate{}, false
	}
	ins := n.DataInputs()
	if len(ins) != 1 {
		return ShapeCandidate{}, false
	}
	src, ok := g.Node(ins[0].Node)
	if !ok {
		return ShapeCandidate{}, false
	}
	shape, ok := oracle.StaticShape(g, src, ins[0].Slot)
	if !ok || !sufficient(n.Op, shape) {
		return ShapeCandidate{}, false
	}
	// Out-of-range results (int32 overflow) stay with the runtime.
	if _, err := Materialize(n, shape); err != nil {
		return ShapeCandidate{}, false
	}
	return ShapeCandidate{Node: n.Name, Source: src.Name, Shape: shape}, true
}

// sufficient reports whether shape answers op: Rank needs only the rank,
// Shape and Size need every dimension.
func sufficient(op string, shape tensor.PartialShape) bool {
	if op == ops.Rank {
		return shape.RankKnown()
	}
	return shape.IsFullyDefined()
}

// ShapeCandidate is a shape query answered from static metadata.
type ShapeCandidate struct {
	Node   string
	Source string
	Shape  tensor.PartialShape
}

// FoldCandidate is a Foldable node whose consumed output slots will be
// replaced by literals.
type FoldCandidate struct {
	Node string
	// Slots are the output slots read by at least one data consumer, ascending.
	Slots []int
	// Closure lists the nodes evaluated together, ancestors first, ending
	// with Node.
	Closure []string
	// ControlDeps is the deduplicated union of control inputs carried by the
	// closure, in closure order.
	ControlDeps []string
}

// ShapeCandidates lists the ShapeMaterializable nodes of cls in arena order.
func ShapeCandidates(g *graph.Graph, cls Classification, oracle ShapeOracle) []ShapeCandidate {
	if oracle == nil {
		return nil
	}
	var out []ShapeCandidate
	for _, n := range g.Nodes() {
		if cls[n.Name] != ShapeMaterializable {
			continue
		}
		if c, ok := shapeSource(g, n, oracle); ok {
			out = append(out, c)
		}
	}
	return out
}

// Candidates lists fold candidates in topological order. Nodes named in
// preserve are never folded: they stay independently fetchable. Foldable
// nodes without data consumers are skipped, there is nothing to rewire.
func Candidates(g *graph.Graph, cls Classification, preserve map[string]bool) ([]FoldCandidate, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	var out []FoldCandidate
	for _, n := range order {
		if cls[n.Name] != Foldable || preserve[n.Name] {
			continue
		}
		slots := consumedSlots(g, n.Name)
		if len(slots) == 0 {
			continue
		}

		closure := g.AncestorClosure(n.Name, func(p *graph.Node) bool {
			return cls[p.Name] == Foldable
		})
		c := FoldCandidate{Node: n.Name, Slots: slots}
		seen := make(map[string]bool)
		for _, m := range closure {
			c.Closure = append(c.Closure, m.Name)
			for _, dep := range m.ControlInputs() {
				if seen[dep] {
					continue
				}
				seen[dep] = true
				c.ControlDeps = append(c.ControlDeps, dep)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func consumedSlots(g *graph.Graph, name string) []int {
	set := make(map[int]bool)
	for _, c := range g.Consumers(name) {
		if !c.Control {
			set[c.Slot] = true
		}
	}
	slots := make([]int, 0, len(set))
	for s := range set {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	return slots
}
