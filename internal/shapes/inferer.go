// Package shapes is a small static shape inference engine. It answers
// "what is statically known about the shape of output k of node n" without
// evaluating any tensor.
//
// Resolution order for a node output:
//  1. the "_output_shapes" attribute, when present and informative
//  2. the embedded value of literal nodes
//  3. the declared "shape" attribute of variables and placeholders
//  4. propagation rules for the pure ops of the op table
package shapes

import (
	"sync"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// Inferer memoizes inferred shapes per graph output. It is safe for
// concurrent use; results are only valid for the graph snapshot queried, so
// call Reset after mutating the graph.
type Inferer struct {
	mu    sync.Mutex
	cache map[graph.Output]tensor.PartialShape
}

func NewInferer() *Inferer {
	return &Inferer{cache: make(map[graph.Output]tensor.PartialShape)}
}

// Reset drops memoized results.
func (s *Inferer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[graph.Output]tensor.PartialShape)
}

// StaticShape returns the statically known shape of output slot of node. The
// boolean is false when nothing, not even the rank, is known.
func (s *Inferer) StaticShape(g *graph.Graph, node *graph.Node, slot int) (tensor.PartialShape, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.infer(g, graph.Output{Node: node.Name, Slot: slot}, map[string]bool{})
	return p, p.RankKnown()
}

func (s *Inferer) infer(g *graph.Graph, out graph.Output, visiting map[string]bool) tensor.PartialShape {
	if p, ok := s.cache[out]; ok {
		return p
	}
	n, ok := g.Node(out.Node)
	if !ok || visiting[out.Node] {
		return tensor.UnknownRankShape()
	}
	visiting[out.Node] = true
	p := s.inferNode(g, n, out.Slot, visiting)
	delete(visiting, out.Node)
	s.cache[out] = p
	return p
}

func (s *Inferer) input(g *graph.Graph, n *graph.Node, i int, visiting map[string]bool) tensor.PartialShape {
	ins := n.DataInputs()
	if i >= len(ins) {
		return tensor.UnknownRankShape()
	}
	return s.infer(g, ins[i], visiting)
}

func (s *Inferer) inferNode(g *graph.Graph, n *graph.Node, slot int, visiting map[string]bool) tensor.PartialShape {
	if a, ok := n.Attrs[graph.AttrOutputShapes]; ok && slot < len(a.Shapes) && a.Shapes[slot].RankKnown() {
		return a.Shapes[slot]
	}

	switch n.Op {
	case ops.Const, ops.HostConst:
		if v, ok := n.TensorAttr(graph.AttrValue); ok {
			return tensor.KnownShape(v.Shape...)
		}
	case ops.PlaceholderOp, ops.PlaceholderWithDefault, ops.Variable, ops.VariableV2, ops.VarHandleOp:
		if p, ok := n.ShapeAttr(graph.AttrShape); ok {
			return p
		}
		if n.Op == ops.PlaceholderWithDefault {
			return s.input(g, n, 0, visiting)
		}
	case ops.Identity, ops.Neg, ops.Square, ops.Cast, ops.ZerosLike, ops.OnesLike:
		return s.input(g, n, 0, visiting)
	case ops.AddN:
		return s.input(g, n, 0, visiting)
	case ops.Add, ops.AddV2, ops.Sub, ops.Mul, ops.RealDiv, ops.FloorDiv, ops.Maximum, ops.Minimum:
		return broadcastShapes(s.input(g, n, 0, visiting), s.input(g, n, 1, visiting))
	case ops.Shape:
		in := s.input(g, n, 0, visiting)
		if in.RankKnown() {
			return tensor.KnownShape(int64(len(in.Dims)))
		}
		return tensor.PartialShape{Dims: []int64{tensor.UnknownDim}}
	case ops.Rank, ops.Size:
		return tensor.KnownShape()
	case ops.Unique:
		in := s.input(g, n, 0, visiting)
		if slot == 1 && in.RankKnown() {
			return in
		}
		return tensor.PartialShape{Dims: []int64{tensor.UnknownDim}}
	case ops.Reshape, ops.Fill:
		return constantDims(g, n)
	}
	return tensor.UnknownRankShape()
}

// constantDims reads the target shape of Reshape/Fill from a literal second
// (Reshape) or first (Fill) input.
func constantDims(g *graph.Graph, n *graph.Node) tensor.PartialShape {
	ins := n.DataInputs()
	idx := 1
	if n.Op == ops.Fill {
		idx = 0
	}
	if idx >= len(ins) {
		return tensor.UnknownRankShape()
	}
	src, ok := g.Node(ins[idx].Node)
	if !ok || !ops.IsLiteral(src.Op) {
		return tensor.UnknownRankShape()
	}
	v, ok := src.TensorAttr(graph.AttrValue)
	if !ok || v.Rank() != 1 {
		return tensor.UnknownRankShape()
	}
	return tensor.PartialShape{Dims: v.Int64s()}
}

func singleElement(p tensor.PartialShape) bool {
	if !p.IsFullyDefined() {
		return false
	}
	n, err := tensor.ElementCount(p.Dims)
	return err == nil && n == 1
}

func broadcastShapes(a, b tensor.PartialShape) tensor.PartialShape {
	if !a.RankKnown() || !b.RankKnown() {
		return tensor.UnknownRankShape()
	}
	if singleElement(a) && len(a.Dims) <= len(b.Dims) {
		return b
	}
	if singleElement(b) && len(b.Dims) <= len(a.Dims) {
		return a
	}
	if len(a.Dims) != len(b.Dims) {
		return tensor.UnknownRankShape()
	}
	out := make([]int64, len(a.Dims))
	for i := range a.Dims {
		switch {
		case a.Dims[i] == b.Dims[i]:
			out[i] = a.Dims[i]
		case a.Dims[i] < 0:
			out[i] = b.Dims[i]
		case b.Dims[i] < 0:
			out[i] = a.Dims[i]
		default:
			return tensor.UnknownRankShape()
		}
	}
	return tensor.PartialShape{Dims: out}
}
