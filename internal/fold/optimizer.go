package fold

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"constfold/internal/graph"
)

const (
	DefaultPrefix           = "ConstantFolding"
	DefaultMaxConstantBytes = 10 << 20
)

// Report summarizes one Optimize call.
type Report struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Fetch        []string      `json:"fetch"`
	IgnoredFetch []string      `json:"ignored_fetch,omitempty"`
	NodesBefore  int           `json:"nodes_before"`
	NodesAfter   int           `json:"nodes_after"`
	Foldable     int           `json:"foldable"`
	Candidates   int           `json:"candidates"`
	Materialized []ShapeRecord `json:"materialized"`
	Folded       []FoldRecord  `json:"folded"`
	Skipped      []SkipRecord  `json:"skipped"`
}

// Optimizer runs the constant folding pass.
type Optimizer struct {
	eval              Evaluator
	oracle            ShapeOracle
	prefix            string
	maxConstantBytes  int
	parallelism       int
	materializeShapes bool
	log               logrus.FieldLogger
	tracer            trace.Tracer
}

type Option func(*Optimizer)

// WithPrefix sets the name prefix of created literal nodes.
func WithPrefix(prefix string) Option {
	return func(o *Optimizer) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithMaxConstantBytes caps the total size of the literals created for one
// candidate. Zero or less disables the limit.
func WithMaxConstantBytes(n int) Option {
	return func(o *Optimizer) { o.maxConstantBytes = n }
}

// WithParallelism bounds how many candidate evaluations run at once.
func WithParallelism(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

func WithShapeMaterialization(enabled bool) Option {
	return func(o *Optimizer) { o.materializeShapes = enabled }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// New returns an Optimizer. oracle may be nil, which disables shape
// materialization.
func New(ev Evaluator, oracle ShapeOracle, opts ...Option) *Optimizer {
	o := &Optimizer{
		eval:              ev,
		oracle:            oracle,
		prefix:            DefaultPrefix,
		maxConstantBytes:  DefaultMaxConstantBytes,
		parallelism:       1,
		materializeShapes: true,
		log:               logrus.StandardLogger(),
		tracer:            otel.Tracer("constfold/fold"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize folds g and returns the rewritten graph; g is not modified.
//
// Shape queries are materialized first, then the graph is classified again
// and every Foldable node with data consumers is evaluated and replaced by
// literals. Nodes in fetch are never folded. Fetch entries naming unknown
// nodes are ignored.
func (o *Optimizer) Optimize(ctx context.Context, g *graph.Graph, fetch []string) (*graph.Graph, *Report, error) {
	report := &Report{
		RunID:       uuid.New().String(),
		StartedAt:   time.Now(),
		NodesBefore: g.Len(),
	}
	ctx, span := o.tracer.Start(ctx, "fold.optimize", trace.WithAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("nodes", g.Len()),
	))
	defer span.End()

	out, err := o.optimize(ctx, g, fetch, report)
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimize failed")
		return nil, nil, err
	}
	span.SetAttributes(
		attribute.Int("materialized", len(report.Materialized)),
		attribute.Int("folded", len(report.Folded)),
		attribute.Int("skipped", len(report.Skipped)),
	)
	return out, report, nil
}

func (o *Optimizer) optimize(ctx context.Context, g *graph.Graph, fetch []string, report *Report) (*graph.Graph, error) {
	log := o.log.WithField("run_id", report.RunID)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	keep, err := o.fetchSet(g, fetch, report, log)
	if err != nil {
		return nil, err
	}

	rw := &Rewriter{
		Evaluator:        o.eval,
		Prefix:           o.prefix,
		MaxConstantBytes: o.maxConstantBytes,
		Parallelism:      o.parallelism,
		Logger:           log,
		Tracer:           o.tracer,
	}

	cur := g
	if o.materializeShapes && o.oracle != nil {
		if r, ok := o.oracle.(resetter); ok {
			r.Reset()
		}
		cls := Classify(cur, o.oracle)
		shapes := ShapeCandidates(cur, cls, o.oracle)
		if len(shapes) > 0 {
			res, err := rw.Rewrite(ctx, cur, nil, shapes, keep)
			if err != nil {
				return nil, err
			}
			cur = res.Graph
			report.Materialized = res.Materialized
			log.WithField("count", len(shapes)).Info("materialized shape queries")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cls := Classify(cur, nil)
	report.Foldable = cls.Count(Foldable)
	// Fetched nodes are filtered by the rewriter so they show up as skips.
	folds, err := Candidates(cur, cls, nil)
	if err != nil {
		return nil, err
	}
	report.Candidates = len(folds)
	res, err := rw.Rewrite(ctx, cur, folds, nil, keep)
	if err != nil {
		return nil, err
	}
	report.Folded = res.Folded
	report.Skipped = res.Skipped
	report.NodesAfter = res.Graph.Len()

	log.WithFields(logrus.Fields{
		"foldable": report.Foldable,
		"folded":   len(report.Folded),
		"skipped":  len(report.Skipped),
	}).Info("constant folding finished")
	return res.Graph, nil
}

// fetchSet resolves fetch entries ("X", "X:k") to node names.
func (o *Optimizer) fetchSet(g *graph.Graph, fetch []string, report *Report, log logrus.FieldLogger) (map[string]bool, error) {
	keep := make(map[string]bool, len(fetch))
	for _, f := range fetch {
		out, err := graph.ParseOutput(f)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch %q: %w", f, err)
		}
		if !g.Has(out.Node) {
			log.WithField("fetch", f).Warn("ignoring fetch of unknown node")
			report.IgnoredFetch = append(report.IgnoredFetch, f)
			continue
		}
		if !keep[out.Node] {
			report.Fetch = append(report.Fetch, out.Node)
		}
		keep[out.Node] = true
	}
	return keep, nil
}
