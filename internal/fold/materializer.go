package fold

import (
	"fmt"
	"math"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// Materialize computes the value of a Rank, Shape or Size node from the
// static shape of its input, without evaluating anything.
//
// Rank is an int32 scalar. Shape is a vector of the dimensions and Size the
// scalar product, both typed by the node's out_type attribute (int32 unless
// it asks for int64).
func Materialize(n *graph.Node, shape tensor.PartialShape) (*tensor.Tensor, error) {
	if !shape.RankKnown() {
		return nil, fmt.Errorf("%w: %s of a tensor with unknown rank", ErrNotMaterializable, n.Op)
	}
	outType := n.TypeAttr(graph.AttrOutType, tensor.Int32)
	if outType != tensor.Int32 && outType != tensor.Int64 {
		return nil, fmt.Errorf("%w: unsupported out_type %s", ErrNotMaterializable, outType)
	}

	switch n.Op {
	case ops.Rank:
		return tensor.ScalarInt32(int32(len(shape.Dims))), nil

	case ops.Shape:
		if !shape.IsFullyDefined() {
			return nil, fmt.Errorf("%w: shape %s has unknown dimensions", ErrNotMaterializable, shape)
		}
		for _, d := range shape.Dims {
			if outType == tensor.Int32 && d > math.MaxInt32 {
				return nil, fmt.Errorf("%w: dimension %d overflows int32", ErrNotMaterializable, d)
			}
		}
		return tensor.FromInt64Values(outType, []int64{int64(len(shape.Dims))}, shape.Dims)

	case ops.Size:
		if !shape.IsFullyDefined() {
			return nil, fmt.Errorf("%w: shape %s has unknown dimensions", ErrNotMaterializable, shape)
		}
		size := int64(1)
		for _, d := range shape.Dims {
			if d != 0 && size > math.MaxInt64/d {
				return nil, fmt.Errorf("%w: size of %s overflows int64", ErrNotMaterializable, shape)
			}
			size *= d
		}
		if outType == tensor.Int32 && size > math.MaxInt32 {
			return nil, fmt.Errorf("%w: size %d overflows int32", ErrNotMaterializable, size)
		}
		return tensor.FromInt64Values(outType, nil, []int64{size})
	}
	return nil, fmt.Errorf("%w: %s is not a shape query", ErrNotMaterializable, n.Op)
}
