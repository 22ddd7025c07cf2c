package shapes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constfold/internal/graph"
	"constfold/internal/tensor"
)

func variable(name string, dims ...int64) *graph.Node {
	return &graph.Node{
		Name: name,
		Op:   "VariableV2",
		Attrs: map[string]graph.Attr{
			graph.AttrShape: graph.ShapeAttr(tensor.KnownShape(dims...)),
			graph.AttrDType: graph.TypeAttr(tensor.Float32),
		},
	}
}

func newGraph(t *testing.T, nodes ...*graph.Node) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	return g
}

func shapeOf(t *testing.T, s *Inferer, g *graph.Graph, name string, slot int) (tensor.PartialShape, bool) {
	t.Helper()
	n, ok := g.Node(name)
	require.True(t, ok, name)
	return s.StaticShape(g, n, slot)
}

func TestInferer_Sources(t *testing.T) {
	g := newGraph(t,
		variable("v", 5, 7),
		&graph.Node{Name: "c", Op: "Const", Attrs: map[string]graph.Attr{
			graph.AttrValue: graph.TensorAttr(tensor.FromInt32s([]int64{2, 2}, []int32{1, 2, 3, 4})),
		}},
		&graph.Node{Name: "p", Op: "Placeholder"},
		&graph.Node{Name: "annotated", Op: "MadeUpOp", Attrs: map[string]graph.Attr{
			graph.AttrOutputShapes: {Shapes: []tensor.PartialShape{tensor.KnownShape(9)}},
		}},
	)
	s := NewInferer()

	p, ok := shapeOf(t, s, g, "v", 0)
	require.True(t, ok)
	assert.Equal(t, []int64{5, 7}, p.Dims)

	p, ok = shapeOf(t, s, g, "c", 0)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 2}, p.Dims)

	_, ok = shapeOf(t, s, g, "p", 0)
	assert.False(t, ok, "placeholder without shape attr")

	p, ok = shapeOf(t, s, g, "annotated", 0)
	require.True(t, ok)
	assert.Equal(t, []int64{9}, p.Dims)
}

func TestInferer_Propagation(t *testing.T) {
	g := newGraph(t,
		variable("v", 3, -1),
		variable("w", 3, 4),
		&graph.Node{Name: "one", Op: "Const", Attrs: map[string]graph.Attr{
			graph.AttrValue: graph.TensorAttr(tensor.ScalarFloat32(1)),
		}},
		&graph.Node{Name: "neg", Op: "Neg", Inputs: []string{"v"}},
		&graph.Node{Name: "sum", Op: "Add", Inputs: []string{"neg", "w"}},
		&graph.Node{Name: "scaled", Op: "Mul", Inputs: []string{"one", "w"}},
		&graph.Node{Name: "shape", Op: "Shape", Inputs: []string{"v"}},
		&graph.Node{Name: "dims", Op: "Const", Attrs: map[string]graph.Attr{
			graph.AttrValue: graph.TensorAttr(tensor.FromInt32s([]int64{1}, []int32{12})),
		}},
		&graph.Node{Name: "flat", Op: "Reshape", Inputs: []string{"w", "dims"}},
	)
	s := NewInferer()

	p, ok := shapeOf(t, s, g, "neg", 0)
	require.True(t, ok)
	assert.Equal(t, []int64{3, -1}, p.Dims)
	assert.False(t, p.IsFullyDefined())

	p, _ = shapeOf(t, s, g, "sum", 0)
	assert.Equal(t, []int64{3, 4}, p.Dims, "unknown dims resolve against the other operand")

	p, _ = shapeOf(t, s, g, "scaled", 0)
	assert.Equal(t, []int64{3, 4}, p.Dims, "scalars broadcast")

	p, _ = shapeOf(t, s, g, "shape", 0)
	assert.Equal(t, []int64{2}, p.Dims)

	p, _ = shapeOf(t, s, g, "flat", 0)
	assert.Equal(t, []int64{12}, p.Dims)
}
