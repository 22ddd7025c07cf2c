package fold

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"constfold/internal/graph"
	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// FoldRecord describes one literal node created by the rewriter.
type FoldRecord struct {
	Node        string   `json:"node"`
	Slot        int      `json:"slot"`
	Literal     string   `json:"literal"`
	ControlDeps []string `json:"control_deps,omitempty"`
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	Bytes       int      `json:"bytes"`
	Rewired     int      `json:"rewired"`
}

// ShapeRecord describes a node replaced in place by its materialized shape.
type ShapeRecord struct {
	Node   string `json:"node"`
	Op     string `json:"op"`
	Source string `json:"source"`
	Value  string `json:"value"`
}

// SkipRecord describes a candidate left unfolded.
type SkipRecord struct {
	Node   string `json:"node"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of one Rewrite call.
type Result struct {
	Graph        *graph.Graph
	Materialized []ShapeRecord
	Folded       []FoldRecord
	Skipped      []SkipRecord
}

// Rewriter splices folded values into a graph.
type Rewriter struct {
	Evaluator        Evaluator
	Prefix           string
	MaxConstantBytes int
	Parallelism      int
	Logger           logrus.FieldLogger
	Tracer           trace.Tracer
}

// LiteralName is the name given to the literal for slot of node.
func LiteralName(prefix, node string, slot int) string {
	if slot == 0 {
		return prefix + "/" + node
	}
	return fmt.Sprintf("%s/%s-%d", prefix, node, slot)
}

// Rewrite applies shape candidates, then fold candidates, to a copy of g.
// g itself is never modified. Candidates naming a node in fetch are skipped.
// A fold candidate whose evaluation or validation fails is skipped without
// affecting the others; a shape candidate that cannot be materialized is an
// InvariantError and aborts the rewrite.
func (r *Rewriter) Rewrite(ctx context.Context, g *graph.Graph, folds []FoldCandidate, shapes []ShapeCandidate, fetch map[string]bool) (*Result, error) {
	res := &Result{Graph: g.Clone()}

	for _, c := range shapes {
		rec, err := r.materialize(res.Graph, c)
		if err != nil {
			return nil, err
		}
		res.Materialized = append(res.Materialized, rec)
	}

	if len(folds) == 0 {
		return res, nil
	}

	var todo []FoldCandidate
	for _, c := range folds {
		if fetch[c.Node] {
			res.Skipped = append(res.Skipped, SkipRecord{Node: c.Node, Reason: ReasonPreserved})
			continue
		}
		todo = append(todo, c)
	}

	// Every evaluation sees the graph as it was before any fold was applied.
	snapshot := res.Graph.Clone()
	outcomes, err := r.evaluateAll(ctx, snapshot, todo)
	if err != nil {
		return nil, err
	}

	var literals []*graph.Node
	taken := make(map[string]bool)
	for i, c := range todo {
		recs, nodes, skip := r.apply(res.Graph, c, outcomes[i], taken)
		if skip != nil {
			r.logger().WithFields(logrus.Fields{
				"node":   c.Node,
				"reason": skip.Reason,
			}).Warnf("leaving node unfolded: %s", skip.Detail)
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		literals = append(literals, nodes...)
		res.Folded = append(res.Folded, recs...)
	}

	if err := res.Graph.Prepend(literals...); err != nil {
		return nil, fmt.Errorf("failed to insert literal nodes: %w", err)
	}
	return res, nil
}

func (r *Rewriter) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// materialize rewrites a shape query in place: same name, literal op, the
// former data input turned into a control input on the shape source.
func (r *Rewriter) materialize(g *graph.Graph, c ShapeCandidate) (ShapeRecord, error) {
	n, ok := g.Node(c.Node)
	if !ok {
		return ShapeRecord{}, &InvariantError{Node: c.Node, Err: fmt.Errorf("node not in graph")}
	}
	value, err := Materialize(n, c.Shape)
	if err != nil {
		return ShapeRecord{}, &InvariantError{Node: c.Node, Err: err}
	}

	inputs := []string{graph.ControlInput(c.Source)}
	for _, dep := range n.ControlInputs() {
		if dep != c.Source {
			inputs = append(inputs, graph.ControlInput(dep))
		}
	}

	rec := ShapeRecord{Node: n.Name, Op: n.Op, Source: c.Source, Value: value.String()}
	n.Op = ops.Const
	n.Inputs = inputs
	n.NumOutputs = 1
	n.Attrs = map[string]graph.Attr{
		graph.AttrDType: graph.TypeAttr(value.DType),
		graph.AttrValue: graph.TensorAttr(value),
	}

	r.logger().WithFields(logrus.Fields{
		"node":   rec.Node,
		"source": rec.Source,
	}).Debugf("materialized %s as %s", rec.Op, rec.Value)
	return rec, nil
}

type outcome struct {
	values []*tensor.Tensor
	err    error
}

// evaluateAll dispatches candidate evaluations, at most Parallelism at a
// time. Each evaluation receives its own subgraph copy. Only cancellation of
// ctx is returned as an error; evaluation failures are per-candidate.
func (r *Rewriter) evaluateAll(ctx context.Context, snapshot *graph.Graph, todo []FoldCandidate) ([]outcome, error) {
	outcomes := make([]outcome, len(todo))
	subgraphs := make([]*graph.Graph, len(todo))
	for i, c := range todo {
		sub, err := isolate(snapshot, c)
		if err != nil {
			outcomes[i].err = err
			continue
		}
		subgraphs[i] = sub
	}

	eg, egCtx := errgroup.WithContext(ctx)
	limit := r.Parallelism
	if limit < 1 {
		limit = 1
	}
	eg.SetLimit(limit)

	for i, c := range todo {
		if subgraphs[i] == nil {
			continue
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.evaluate(egCtx, subgraphs[i], c)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Rewriter) evaluate(ctx context.Context, sub *graph.Graph, c FoldCandidate) outcome {
	if r.Tracer != nil {
		var span trace.Span
		ctx, span = r.Tracer.Start(ctx, "fold.evaluate", trace.WithAttributes(
			attribute.String("node", c.Node),
			attribute.Int("closure_size", len(c.Closure)),
			attribute.Int("slots", len(c.Slots)),
		))
		defer span.End()
		o := r.evaluateFetches(ctx, sub, c)
		if o.err != nil {
			span.RecordError(o.err)
			span.SetStatus(codes.Error, "evaluation failed")
		}
		return o
	}
	return r.evaluateFetches(ctx, sub, c)
}

// evaluateFetches turns an evaluator panic into an evaluation failure of c.
func (r *Rewriter) evaluateFetches(ctx context.Context, sub *graph.Graph, c FoldCandidate) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			o = outcome{err: fmt.Errorf("evaluator panicked: %v", p)}
		}
	}()
	fetch := make([]graph.Output, len(c.Slots))
	for i, s := range c.Slots {
		fetch[i] = graph.Output{Node: c.Node, Slot: s}
	}
	values, err := r.Evaluator.Evaluate(ctx, sub, fetch)
	return outcome{values: values, err: err}
}

// isolate copies the closure of c into a standalone graph with control
// inputs stripped; ordering constraints are carried by the literal instead.
func isolate(g *graph.Graph, c FoldCandidate) (*graph.Graph, error) {
	sub := graph.NewGraph()
	for _, name := range c.Closure {
		n, ok := g.Node(name)
		if !ok {
			return nil, fmt.Errorf("closure node %q not in graph", name)
		}
		cp := n.Clone()
		cp.Inputs = cp.Inputs[:0]
		for _, in := range n.DataInputs() {
			cp.Inputs = append(cp.Inputs, in.String())
		}
		if err := sub.AddNode(cp); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// apply validates every result of c before touching g, so a candidate is
// either folded completely or not at all.
func (r *Rewriter) apply(g *graph.Graph, c FoldCandidate, o outcome, taken map[string]bool) ([]FoldRecord, []*graph.Node, *SkipRecord) {
	skip := func(reason string, format string, args ...any) ([]FoldRecord, []*graph.Node, *SkipRecord) {
		return nil, nil, &SkipRecord{Node: c.Node, Reason: reason, Detail: fmt.Sprintf(format, args...)}
	}

	if o.err != nil {
		return skip(ReasonEvaluation, "%v", o.err)
	}
	if len(o.values) != len(c.Slots) {
		return skip(ReasonResultCount, "evaluator returned %d values for %d fetches", len(o.values), len(c.Slots))
	}
	total := 0
	for i, v := range o.values {
		if v == nil {
			return skip(ReasonInvalidResult, "no value for slot %d", c.Slots[i])
		}
		if err := v.Validate(); err != nil {
			return skip(ReasonInvalidResult, "slot %d: %v", c.Slots[i], err)
		}
		total += v.ByteSize()
	}
	if r.MaxConstantBytes > 0 && total > r.MaxConstantBytes {
		return skip(ReasonTooLarge, "%d bytes exceeds limit of %d", total, r.MaxConstantBytes)
	}
	names := make([]string, len(c.Slots))
	for i, s := range c.Slots {
		names[i] = LiteralName(r.Prefix, c.Node, s)
		if g.Has(names[i]) || taken[names[i]] {
			return skip(ReasonNameCollision, "%q already exists", names[i])
		}
	}

	orig, _ := g.Node(c.Node)
	deps := make([]string, len(c.ControlDeps))
	for i, d := range c.ControlDeps {
		deps[i] = graph.ControlInput(d)
	}

	slotLiteral := make(map[int]string, len(c.Slots))
	nodes := make([]*graph.Node, len(c.Slots))
	recs := make([]FoldRecord, len(c.Slots))
	for i, s := range c.Slots {
		v := o.values[i]
		nodes[i] = &graph.Node{
			Name:       names[i],
			Op:         ops.Const,
			Inputs:     append([]string(nil), deps...),
			NumOutputs: 1,
			Device:     orig.Device,
			Attrs: map[string]graph.Attr{
				graph.AttrDType: graph.TypeAttr(v.DType),
				graph.AttrValue: graph.TensorAttr(v),
			},
		}
		slotLiteral[s] = names[i]
		taken[names[i]] = true
		recs[i] = FoldRecord{
			Node:        c.Node,
			Slot:        s,
			Literal:     names[i],
			ControlDeps: append([]string(nil), c.ControlDeps...),
			DType:       v.DType.String(),
			Shape:       append([]int64{}, v.Shape...),
			Bytes:       v.ByteSize(),
		}
	}

	for _, cons := range g.Consumers(c.Node) {
		if cons.Control {
			continue
		}
		lit, ok := slotLiteral[cons.Slot]
		if !ok {
			continue
		}
		n, _ := g.Node(cons.Node)
		n.Inputs[cons.Index] = lit
		for i := range recs {
			if recs[i].Slot == cons.Slot {
				recs[i].Rewired++
			}
		}
	}

	for _, rec := range recs {
		r.logger().WithFields(logrus.Fields{
			"node":    rec.Node,
			"slot":    rec.Slot,
			"literal": rec.Literal,
		}).Debugf("folded %d consumer edges", rec.Rewired)
	}
	return recs, nodes, nil
}
