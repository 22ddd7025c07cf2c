package fold

import (
	"context"

	"constfold/internal/graph"
	"constfold/internal/tensor"
)

// Evaluator computes concrete values for fetch points of an isolated
// subgraph, one value per fetch in fetch order. Implementations must be
// deterministic and safe to call from several goroutines at once.
type Evaluator interface {
	Evaluate(ctx context.Context, subgraph *graph.Graph, fetch []graph.Output) ([]*tensor.Tensor, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, subgraph *graph.Graph, fetch []graph.Output) ([]*tensor.Tensor, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, subgraph *graph.Graph, fetch []graph.Output) ([]*tensor.Tensor, error) {
	return f(ctx, subgraph, fetch)
}

// ShapeOracle reports statically known shape metadata. The boolean is false
// when not even the rank is known.
type ShapeOracle interface {
	StaticShape(g *graph.Graph, n *graph.Node, slot int) (tensor.PartialShape, bool)
}

// resetter is implemented by oracles that memoize per graph snapshot.
type resetter interface {
	Reset()
}
