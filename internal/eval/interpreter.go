// Package eval is a reference tensor interpreter for the stateless ops of the
// op table. It backs the folding pass in the CLI and in tests; production
// hosts plug their own execution engine in through fold.Evaluator.
package eval

import (
	"context"
	"errors"
	"fmt"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

var (
	ErrEvaluation  = errors.New("evaluation failed")
	ErrUnsupported = errors.New("unsupported operation")
)

// MaxElements bounds the size of any tensor the interpreter allocates.
// Larger results fail with ErrEvaluation instead of exhausting memory.
const MaxElements = 1 << 26

// allocSize validates shape and returns its element count.
func allocSize(shape []int64) (int64, error) {
	n, err := tensor.ElementCount(shape)
	if err != nil {
		return 0, err
	}
	if n > MaxElements {
		return 0, fmt.Errorf("shape %v has %d elements, limit is %d", shape, n, MaxElements)
	}
	return n, nil
}

func failf(node string, format string, args ...any) error {
	return fmt.Errorf("%w: node %q: %s", ErrEvaluation, node, fmt.Sprintf(format, args...))
}

// Interpreter evaluates graphs node by node. It keeps no state between calls
// and may be shared across goroutines.
type Interpreter struct {
	feeds map[string]*tensor.Tensor
}

func NewInterpreter() *Interpreter { return &Interpreter{} }

// WithFeeds returns an interpreter that substitutes the given values for the
// named nodes, the way a session run feeds placeholders and variables.
func (in *Interpreter) WithFeeds(feeds map[string]*tensor.Tensor) *Interpreter {
	return &Interpreter{feeds: feeds}
}

// Evaluate computes the requested outputs of g, in fetch order. Only the
// nodes the fetches depend on are executed.
func (in *Interpreter) Evaluate(ctx context.Context, g *graph.Graph, fetch []graph.Output) ([]*tensor.Tensor, error) {
	r := &run{ctx: ctx, g: g, values: make(map[string][]*tensor.Tensor), active: make(map[string]bool)}
	for name, v := range in.feeds {
		r.values[name] = []*tensor.Tensor{v}
	}
	out := make([]*tensor.Tensor, len(fetch))
	for i, f := range fetch {
		vals, err := r.node(f.Node)
		if err != nil {
			return nil, err
		}
		if f.Slot >= len(vals) {
			return nil, failf(f.Node, "has no output %d", f.Slot)
		}
		out[i] = vals[f.Slot]
	}
	return out, nil
}

type run struct {
	ctx    context.Context
	g      *graph.Graph
	values map[string][]*tensor.Tensor
	active map[string]bool
}

func (r *run) node(name string) ([]*tensor.Tensor, error) {
	if vals, ok := r.values[name]; ok {
		return vals, nil
	}
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	n, ok := r.g.Node(name)
	if !ok {
		return nil, failf(name, "not in graph")
	}
	if r.active[name] {
		return nil, failf(name, "cycle")
	}
	r.active[name] = true
	defer delete(r.active, name)

	// Control inputs only order execution; run them for their effects on
	// evaluation errors, discard the values.
	for _, c := range n.ControlInputs() {
		if _, err := r.node(c); err != nil {
			return nil, err
		}
	}

	var args []*tensor.Tensor
	for _, in := range n.DataInputs() {
		vals, err := r.node(in.Node)
		if err != nil {
			return nil, err
		}
		if in.Slot >= len(vals) {
			return nil, failf(n.Name, "input %s has no output %d", in.Node, in.Slot)
		}
		args = append(args, vals[in.Slot])
	}

	vals, err := execute(n, args)
	if err != nil {
		return nil, err
	}
	r.values[name] = vals
	return vals, nil
}

func execute(n *graph.Node, args []*tensor.Tensor) ([]*tensor.Tensor, error) {
	need := func(k int) error {
		if len(args) != k {
			return failf(n.Name, "%s expects %d inputs, got %d", n.Op, k, len(args))
		}
		return nil
	}

	switch n.Op {
	case ops.Const, ops.HostConst:
		v, ok := n.TensorAttr(graph.AttrValue)
		if !ok {
			return nil, failf(n.Name, "literal has no value")
		}
		return one(v.Clone())
	case "NoOp":
		return nil, nil
	case ops.PlaceholderWithDefault:
		if err := need(1); err != nil {
			return nil, err
		}
		return one(args[0])
	case ops.Identity:
		if err := need(1); err != nil {
			return nil, err
		}
		return one(args[0])
	case ops.AddN:
		if len(args) == 0 {
			return nil, failf(n.Name, "AddN needs at least one input")
		}
		acc := args[0]
		for _, a := range args[1:] {
			if !sameShape(acc.Shape, a.Shape) {
				return nil, failf(n.Name, "AddN shapes %v and %v differ", acc.Shape, a.Shape)
			}
			var err error
			if acc, err = binary(n, ops.Add, acc, a); err != nil {
				return nil, err
			}
		}
		return one(acc)
	case ops.Add, ops.AddV2, ops.Sub, ops.Mul, ops.RealDiv, ops.FloorDiv, ops.Maximum, ops.Minimum:
		if err := need(2); err != nil {
			return nil, err
		}
		v, err := binary(n, n.Op, args[0], args[1])
		if err != nil {
			return nil, err
		}
		return one(v)
	case ops.Neg, ops.Square:
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := unary(n, args[0])
		if err != nil {
			return nil, err
		}
		return one(v)
	case ops.ZerosLike, ops.OnesLike:
		if err := need(1); err != nil {
			return nil, err
		}
		fillValue := 0.0
		if n.Op == ops.OnesLike {
			fillValue = 1
		}
		v, err := filled(args[0].DType, args[0].Shape, fillValue)
		if err != nil {
			return nil, failf(n.Name, "%v", err)
		}
		return one(v)
	case ops.Fill:
		if err := need(2); err != nil {
			return nil, err
		}
		if args[1].NumElements() != 1 {
			return nil, failf(n.Name, "Fill value must be a scalar")
		}
		dims := args[0].Int64s()
		size, err := allocSize(dims)
		if err != nil {
			return nil, failf(n.Name, "Fill: %v", err)
		}
		var v *tensor.Tensor
		if args[1].DType.IsInteger() {
			v, err = tensor.FromInt64Values(args[1].DType, dims, repeat(args[1].Int64s()[0], size))
		} else {
			v, err = filled(args[1].DType, dims, args[1].Float64s()[0])
		}
		if err != nil {
			return nil, failf(n.Name, "%v", err)
		}
		return one(v)
	case ops.Cast:
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := cast(args[0], n.TypeAttr("DstT", tensor.Invalid))
		if err != nil {
			return nil, failf(n.Name, "%v", err)
		}
		return one(v)
	case ops.Reshape:
		if err := need(2); err != nil {
			return nil, err
		}
		v, err := reshape(args[0], args[1].Int64s())
		if err != nil {
			return nil, failf(n.Name, "%v", err)
		}
		return one(v)
	case ops.Unique:
		if err := need(1); err != nil {
			return nil, err
		}
		y, idx, err := unique(args[0], n.TypeAttr(graph.AttrOutType, tensor.Int32))
		if err != nil {
			return nil, failf(n.Name, "%v", err)
		}
		return []*tensor.Tensor{y, idx}, nil
	case ops.Shape, ops.Rank, ops.Size:
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := shapeQuery(n, args[0])
		if err != nil {
			return nil, err
		}
		return one(v)
	}
	return nil, fmt.Errorf("%w: %w: %s (node %q)", ErrEvaluation, ErrUnsupported, n.Op, n.Name)
}

func one(t *tensor.Tensor) ([]*tensor.Tensor, error) { return []*tensor.Tensor{t}, nil }

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func repeat(v int64, n int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func filled(dtype tensor.DType, shape []int64, v float64) (*tensor.Tensor, error) {
	size, err := allocSize(shape)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, size)
	for i := range vals {
		vals[i] = v
	}
	return tensor.FromFloat64Values(dtype, shape, vals)
}
