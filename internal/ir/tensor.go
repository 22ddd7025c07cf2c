package ir

import (
	"github.com/pkg/errors"

	"constfold/internal/tensor"
)

// FromTensor converts a literal value to its serialized form.
func FromTensor(t *tensor.Tensor) *TensorDef {
	if t == nil {
		return nil
	}
	def := &TensorDef{
		DType: t.DType.String(),
		Shape: append([]int64{}, t.Shape...),
	}
	switch {
	case t.DType.IsFloat():
		def.Floats = t.Float64s()
	case t.DType.IsInteger():
		def.Ints = t.Int64s()
	case t.DType == tensor.Bool:
		def.Bools = t.Bools()
	}
	return def
}

// MaxLiteralElements bounds the element count of a decoded literal.
const MaxLiteralElements = 1 << 28

// ToTensor decodes a serialized literal. A single value is broadcast to the
// whole shape, matching how literal constants are usually written by hand.
func (d *TensorDef) ToTensor() (*tensor.Tensor, error) {
	dtype, err := tensor.ParseDType(d.DType)
	if err != nil {
		return nil, err
	}
	n, err := tensor.ElementCount(d.Shape)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n > MaxLiteralElements {
		return nil, errors.Errorf("tensor shape %v has %d elements, limit is %d", d.Shape, n, MaxLiteralElements)
	}

	switch {
	case dtype.IsFloat():
		vals, err := broadcast(d.Floats, n)
		if err != nil {
			return nil, errors.Wrapf(err, "%s tensor", dtype)
		}
		return tensor.FromFloat64Values(dtype, d.Shape, vals)
	case dtype.IsInteger():
		vals, err := broadcast(d.Ints, n)
		if err != nil {
			return nil, errors.Wrapf(err, "%s tensor", dtype)
		}
		return tensor.FromInt64Values(dtype, d.Shape, vals)
	default:
		vals, err := broadcast(d.Bools, n)
		if err != nil {
			return nil, errors.Wrap(err, "bool tensor")
		}
		return tensor.FromBools(d.Shape, vals), nil
	}
}

func broadcast[T any](vals []T, n int64) ([]T, error) {
	if int64(len(vals)) == n {
		return vals, nil
	}
	if len(vals) == 1 {
		out := make([]T, n)
		for i := range out {
			out[i] = vals[0]
		}
		return out, nil
	}
	return nil, errors.Errorf("%d values cannot fill %d elements", len(vals), n)
}

// FromShape converts a partial shape to its serialized form.
func FromShape(p tensor.PartialShape) ShapeDef {
	return ShapeDef{Dims: append([]int64{}, p.Dims...), UnknownRank: p.UnknownRank}
}

func (s ShapeDef) ToShape() tensor.PartialShape {
	return tensor.PartialShape{Dims: append([]int64(nil), s.Dims...), UnknownRank: s.UnknownRank}
}
