package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"constfold/internal/analysis"
	"constfold/internal/config"
	"constfold/internal/eval"
	"constfold/internal/fold"
	"constfold/internal/graph"
	"constfold/internal/ir"
	"constfold/internal/shapes"
	"constfold/internal/storage"
)

// Request describes one end-to-end optimization of a graph file.
type Request struct {
	GraphPath  string
	OutputPath string // empty skips writing
	Fetch      []string
	Record     bool
}

type Result struct {
	Graph        *graph.Graph
	Report       *fold.Report
	Reachability *analysis.ReachabilityReport
}

type Pipeline struct {
	Config    *config.Config
	Evaluator fold.Evaluator
	Oracle    fold.ShapeOracle
	Log       logrus.FieldLogger

	// OpenStore opens the run history; defaults to SQLite at Config.Storage.DBPath.
	OpenStore func() (storage.RunStore, error)
}

// New returns a pipeline wired with the reference interpreter and shape
// inferer.
func New(cfg *config.Config, log logrus.FieldLogger) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pipeline{
		Config:    cfg,
		Evaluator: eval.NewInterpreter(),
		Oracle:    shapes.NewInferer(),
		Log:       log,
	}
	p.OpenStore = func() (storage.RunStore, error) {
		return storage.NewSQLiteStore(p.Config.Storage.DBPath)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	g, err := p.loadStage(req.GraphPath)
	if err != nil {
		return nil, err
	}

	out, report, err := p.optimizeStage(ctx, g, req.Fetch)
	if err != nil {
		return nil, err
	}

	if req.OutputPath != "" {
		if err := p.writeStage(out, req.OutputPath); err != nil {
			return nil, err
		}
	}

	reach := p.analysisStage(out, req.Fetch)

	if req.Record {
		if err := p.recordStage(ctx, report, req.GraphPath); err != nil {
			return nil, err
		}
	}

	return &Result{Graph: out, Report: report, Reachability: reach}, nil
}

func (p *Pipeline) loadStage(path string) (*graph.Graph, error) {
	def, err := ir.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	g, err := graph.FromDef(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph from %s: %w", path, err)
	}
	p.Log.WithFields(logrus.Fields{"path": path, "nodes": g.Len()}).Info("graph loaded")
	return g, nil
}

// Optimizer builds the fold optimizer from the pipeline configuration.
func (p *Pipeline) Optimizer() *fold.Optimizer {
	c := p.Config.Fold
	return fold.New(p.Evaluator, p.Oracle,
		fold.WithPrefix(c.Prefix),
		fold.WithMaxConstantBytes(c.MaxConstantBytes),
		fold.WithParallelism(c.Parallelism),
		fold.WithShapeMaterialization(c.MaterializeShapes),
		fold.WithLogger(p.Log),
	)
}

func (p *Pipeline) optimizeStage(ctx context.Context, g *graph.Graph, fetch []string) (*graph.Graph, *fold.Report, error) {
	start := time.Now()
	out, report, err := p.Optimizer().Optimize(ctx, g, fetch)
	if err != nil {
		return nil, nil, fmt.Errorf("constant folding failed: %w", err)
	}
	p.Log.WithFields(logrus.Fields{
		"run_id":       report.RunID,
		"materialized": len(report.Materialized),
		"folded":       len(report.Folded),
		"skipped":      len(report.Skipped),
		"elapsed":      time.Since(start),
	}).Info("graph optimized")
	return out, report, nil
}

func (p *Pipeline) writeStage(g *graph.Graph, path string) error {
	if err := ir.SaveFile(path, graph.ToDef(g)); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	p.Log.WithField("path", path).Info("graph written")
	return nil
}

func (p *Pipeline) analysisStage(g *graph.Graph, fetch []string) *analysis.ReachabilityReport {
	report := analysis.NewAnalyzer(g).AnalyzeReachability(fetch, p.Config.Fold.Prefix)
	p.Log.WithFields(logrus.Fields{
		"reachable":   len(report.Reachable),
		"unreachable": len(report.Unreachable),
		"literals":    len(report.Literals),
	}).Debug("reachability analyzed")
	for _, lit := range report.Literals {
		p.Log.WithFields(logrus.Fields{
			"literal": lit.Name,
			"uses":    report.LiteralUses[lit.Name],
		}).Debug("folded literal in use")
	}
	return report
}

func (p *Pipeline) recordStage(ctx context.Context, report *fold.Report, graphPath string) error {
	store, err := p.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	if err := store.SaveReport(ctx, report, graphPath); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	p.Log.WithField("run_id", report.RunID).Debug("run recorded")
	return nil
}
