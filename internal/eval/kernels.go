package eval

import (
	"bytes"
	"fmt"
	"math"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// broadcastShape accepts identical shapes or a single-element operand whose
// rank does not exceed the other's.
func broadcastShape(a, b *tensor.Tensor) ([]int64, bool) {
	switch {
	case sameShape(a.Shape, b.Shape):
		return a.Shape, true
	case a.NumElements() == 1 && a.Rank() <= b.Rank():
		return b.Shape, true
	case b.NumElements() == 1 && b.Rank() <= a.Rank():
		return a.Shape, true
	}
	return nil, false
}

func at[T any](vals []T, i int) T {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[i]
}

func binary(n *graph.Node, op string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a.DType != b.DType {
		return nil, failf(n.Name, "%s operands have dtypes %s and %s", op, a.DType, b.DType)
	}
	shape, ok := broadcastShape(a, b)
	if !ok {
		return nil, failf(n.Name, "%s shapes %v and %v are incompatible", op, a.Shape, b.Shape)
	}
	size := int(tensor.NumElements(shape))

	switch {
	case a.DType.IsFloat():
		x, y := a.Float64s(), b.Float64s()
		out := make([]float64, size)
		for i := range out {
			out[i] = floatOp(op, at(x, i), at(y, i))
		}
		return tensor.FromFloat64Values(a.DType, shape, out)
	case a.DType.IsInteger():
		if op == ops.RealDiv {
			return nil, failf(n.Name, "RealDiv is not defined for %s", a.DType)
		}
		x, y := a.Int64s(), b.Int64s()
		out := make([]int64, size)
		for i := range out {
			v, err := intOp(op, at(x, i), at(y, i))
			if err != nil {
				return nil, failf(n.Name, "%v", err)
			}
			out[i] = v
		}
		return tensor.FromInt64Values(a.DType, shape, out)
	}
	return nil, failf(n.Name, "%s is not defined for %s", op, a.DType)
}

func floatOp(op string, x, y float64) float64 {
	switch op {
	case ops.Add, ops.AddV2:
		return x + y
	case ops.Sub:
		return x - y
	case ops.Mul:
		return x * y
	case ops.RealDiv:
		return x / y
	case ops.FloorDiv:
		return math.Floor(x / y)
	case ops.Maximum:
		return math.Max(x, y)
	case ops.Minimum:
		return math.Min(x, y)
	}
	return math.NaN()
}

func intOp(op string, x, y int64) (int64, error) {
	switch op {
	case ops.Add, ops.AddV2:
		return x + y, nil
	case ops.Sub:
		return x - y, nil
	case ops.Mul:
		return x * y, nil
	case ops.FloorDiv:
		if y == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		q := x / y
		if (x%y != 0) && ((x < 0) != (y < 0)) {
			q--
		}
		return q, nil
	case ops.Maximum:
		return max(x, y), nil
	case ops.Minimum:
		return min(x, y), nil
	}
	return 0, fmt.Errorf("unknown binary op %s", op)
}

func unary(n *graph.Node, a *tensor.Tensor) (*tensor.Tensor, error) {
	switch {
	case a.DType.IsFloat():
		x := a.Float64s()
		for i, v := range x {
			if n.Op == ops.Neg {
				x[i] = -v
			} else {
				x[i] = v * v
			}
		}
		return tensor.FromFloat64Values(a.DType, a.Shape, x)
	case a.DType.IsInteger():
		x := a.Int64s()
		for i, v := range x {
			if n.Op == ops.Neg {
				x[i] = -v
			} else {
				x[i] = v * v
			}
		}
		return tensor.FromInt64Values(a.DType, a.Shape, x)
	}
	return nil, failf(n.Name, "%s is not defined for %s", n.Op, a.DType)
}

func cast(a *tensor.Tensor, dst tensor.DType) (*tensor.Tensor, error) {
	if dst == tensor.Invalid {
		return nil, fmt.Errorf("missing DstT attribute")
	}
	if a.DType == dst {
		return a, nil
	}
	if a.DType.IsInteger() {
		return tensor.FromInt64Values(dst, a.Shape, a.Int64s())
	}
	return tensor.FromFloat64Values(dst, a.Shape, a.Float64s())
}

func reshape(a *tensor.Tensor, dims []int64) (*tensor.Tensor, error) {
	out := append([]int64(nil), dims...)
	infer := -1
	var rest []int64
	for i, d := range out {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			return nil, fmt.Errorf("invalid Reshape dims %v", dims)
		default:
			rest = append(rest, d)
		}
	}
	known, err := tensor.ElementCount(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid Reshape dims %v: %w", dims, err)
	}
	total := a.NumElements()
	if infer >= 0 {
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v into %v", a.Shape, dims)
		}
		out[infer] = total / known
	} else if known != total {
		return nil, fmt.Errorf("cannot reshape %v into %v", a.Shape, dims)
	}
	v := a.Clone()
	v.Shape = out
	return v, nil
}

// unique returns the distinct elements of a 1-D tensor in first-occurrence
// order, and for every input element the position of its value in y.
func unique(a *tensor.Tensor, idxType tensor.DType) (*tensor.Tensor, *tensor.Tensor, error) {
	if a.Rank() != 1 {
		return nil, nil, fmt.Errorf("input must be a vector, got shape %v", a.Shape)
	}
	width := a.DType.Size()
	n := int(a.NumElements())

	// Floats compare by value: -0 equals +0 and NaN equals nothing.
	same := func(i, j int) bool {
		return bytes.Equal(a.Data[i*width:(i+1)*width], a.Data[j*width:(j+1)*width])
	}
	if a.DType.IsFloat() {
		vals := a.Float64s()
		same = func(i, j int) bool { return vals[i] == vals[j] }
	}

	var y []byte
	idx := make([]int64, n)
	var seen []int // first occurrence of each distinct value
	for i := 0; i < n; i++ {
		pos := -1
		for j, first := range seen {
			if same(i, first) {
				pos = j
				break
			}
		}
		if pos < 0 {
			pos = len(seen)
			seen = append(seen, i)
			y = append(y, a.Data[i*width:(i+1)*width]...)
		}
		idx[i] = int64(pos)
	}

	yt := &tensor.Tensor{DType: a.DType, Shape: []int64{int64(len(seen))}, Data: y}
	if y == nil {
		yt.Data = []byte{}
	}
	it, err := tensor.FromInt64Values(idxType, []int64{int64(n)}, idx)
	if err != nil {
		return nil, nil, err
	}
	return yt, it, nil
}

func shapeQuery(n *graph.Node, a *tensor.Tensor) (*tensor.Tensor, error) {
	outType := n.TypeAttr(graph.AttrOutType, tensor.Int32)
	switch n.Op {
	case ops.Rank:
		return tensor.ScalarInt32(int32(a.Rank())), nil
	case ops.Shape:
		for _, d := range a.Shape {
			if outType == tensor.Int32 && d > math.MaxInt32 {
				return nil, failf(n.Name, "dimension %d overflows int32", d)
			}
		}
		return tensor.FromInt64Values(outType, []int64{int64(a.Rank())}, a.Shape)
	default:
		size := a.NumElements()
		if outType == tensor.Int32 && size > math.MaxInt32 {
			return nil, failf(n.Name, "size %d overflows int32", size)
		}
		return tensor.FromInt64Values(outType, nil, []int64{size})
	}
}
