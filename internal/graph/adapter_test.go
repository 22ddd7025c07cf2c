package graph

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constfold/internal/ir"
	"constfold/internal/tensor"
)

const sampleGraph = `
version: "1"
nodes:
  - name: a
    op: Const
    attrs:
      value: {tensor: {dtype: float32, shape: [1], floats: [1]}}
  - name: v
    op: VariableV2
    attrs:
      shape: {shape: {dims: [5, -1]}}
      dtype: {type: DT_FLOAT}
  - name: s
    op: Shape
    inputs: [v, ^a]
    attrs:
      out_type: {type: int64}
`

func TestFromDef(t *testing.T) {
	def, err := ir.Decode(strings.NewReader(sampleGraph), ir.FormatYAML)
	require.NoError(t, err)

	g, err := FromDef(def)
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	assert.Equal(t, []string{"a", "v", "s"}, g.Names())

	a, _ := g.Node("a")
	val, ok := a.TensorAttr(AttrValue)
	require.True(t, ok)
	assert.True(t, val.Equal(tensor.FromFloat32s([]int64{1}, []float32{1})))

	v, _ := g.Node("v")
	shape, ok := v.ShapeAttr(AttrShape)
	require.True(t, ok)
	assert.Equal(t, []int64{5, -1}, shape.Dims)
	assert.False(t, shape.IsFullyDefined())
	assert.Equal(t, tensor.Float32, v.TypeAttr(AttrDType, tensor.Invalid))

	s, _ := g.Node("s")
	assert.Equal(t, []Output{{Node: "v"}}, s.DataInputs())
	assert.Equal(t, []string{"a"}, s.ControlInputs())
	assert.Equal(t, tensor.Int64, s.TypeAttr(AttrOutType, tensor.Int32))
}

func TestToDef_RoundTrip(t *testing.T) {
	def, err := ir.Decode(strings.NewReader(sampleGraph), ir.FormatYAML)
	require.NoError(t, err)
	g, err := FromDef(def)
	require.NoError(t, err)

	for _, format := range []ir.Format{ir.FormatYAML, ir.FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, ir.Encode(&buf, ToDef(g), format))

		back, err := ir.Decode(&buf, format)
		require.NoError(t, err, string(format))
		g2, err := FromDef(back)
		require.NoError(t, err)

		assert.Equal(t, g.Names(), g2.Names())
		a, _ := g2.Node("a")
		val, _ := a.TensorAttr(AttrValue)
		assert.Equal(t, []float64{1}, val.Float64s())
	}
}

func TestFromDef_Errors(t *testing.T) {
	t.Run("duplicate names", func(t *testing.T) {
		_, err := FromDef(&ir.GraphDef{Nodes: []ir.NodeDef{{Name: "a", Op: "NoOp"}, {Name: "a", Op: "NoOp"}}})
		assert.True(t, errors.Is(err, ErrInvalidGraph))
	})

	t.Run("bad tensor", func(t *testing.T) {
		_, err := FromDef(&ir.GraphDef{Nodes: []ir.NodeDef{{
			Name:  "a",
			Op:    "Const",
			Attrs: map[string]ir.AttrDef{"value": {Tensor: &ir.TensorDef{DType: "float32", Shape: []int64{3}, Floats: []float64{1, 2}}}},
		}}})
		assert.True(t, errors.Is(err, ErrInvalidGraph))
	})
}
