package fold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constfold/internal/graph"
	"constfold/internal/tensor"
)

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name  string
		node  *graph.Node
		shape tensor.PartialShape
		want  *tensor.Tensor
	}{
		{"rank", op("r", "Rank", "v"), tensor.KnownShape(3), tensor.ScalarInt32(1)},
		{"rank partial", op("r", "Rank", "v"), tensor.KnownShape(tensor.UnknownDim, 2), tensor.ScalarInt32(2)},
		{"rank scalar", op("r", "Rank", "v"), tensor.KnownShape(), tensor.ScalarInt32(0)},
		{"shape", op("s", "Shape", "v"), tensor.KnownShape(5, 7), tensor.FromInt32s([]int64{2}, []int32{5, 7})},
		{"shape of scalar", op("s", "Shape", "v"), tensor.KnownShape(), tensor.FromInt32s([]int64{0}, []int32{})},
		{"size", op("z", "Size", "v"), tensor.KnownShape(11, 13), tensor.ScalarInt32(143)},
		{"size empty", op("z", "Size", "v"), tensor.KnownShape(4, 0), tensor.ScalarInt32(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Materialize(tt.node, tt.shape)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestMaterialize_OutType(t *testing.T) {
	n := op("s", "Shape", "v")
	n.Attrs = map[string]graph.Attr{graph.AttrOutType: graph.TypeAttr(tensor.Int64)}

	got, err := Materialize(n, tensor.KnownShape(5, 7))
	require.NoError(t, err)
	assert.True(t, got.Equal(tensor.FromInt64s([]int64{2}, []int64{5, 7})))

	n.Attrs[graph.AttrOutType] = graph.TypeAttr(tensor.Float32)
	_, err = Materialize(n, tensor.KnownShape(5, 7))
	assert.ErrorIs(t, err, ErrNotMaterializable)
}

func TestMaterialize_Errors(t *testing.T) {
	_, err := Materialize(op("r", "Rank", "v"), tensor.UnknownRankShape())
	assert.ErrorIs(t, err, ErrNotMaterializable)

	_, err = Materialize(op("s", "Shape", "v"), tensor.KnownShape(tensor.UnknownDim, 3))
	assert.ErrorIs(t, err, ErrNotMaterializable)

	_, err = Materialize(op("z", "Size", "v"), tensor.KnownShape(1<<20, 1<<20))
	assert.ErrorIs(t, err, ErrNotMaterializable)

	_, err = Materialize(op("n", "Neg", "v"), tensor.KnownShape(3))
	assert.ErrorIs(t, err, ErrNotMaterializable)
}
