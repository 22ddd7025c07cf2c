package storage

import (
	"context"
	"time"

	"constfold/internal/fold"
)

// RunStore persists optimizer reports so past runs can be inspected.
type RunStore interface {
	// SaveReport records one run and everything it folded, materialized or
	// skipped. graphPath names the input graph and may be empty.
	SaveReport(ctx context.Context, r *fold.Report, graphPath string) error

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetFolds returns the literals created by a run, in creation order.
	GetFolds(ctx context.Context, runID string) ([]fold.FoldRecord, error)

	// GetSkips returns the candidates a run left unfolded.
	GetSkips(ctx context.Context, runID string) ([]fold.SkipRecord, error)

	Close() error
}

// Run is the summary row of one optimizer run.
type Run struct {
	ID           string
	GraphPath    string
	StartedAt    time.Time
	Duration     time.Duration
	Fetch        []string
	NodesBefore  int
	NodesAfter   int
	Materialized int
	Folded       int
	Skipped      int
}
