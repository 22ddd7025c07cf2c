package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"constfold/internal/fold"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SaveReport_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	r := testReport("run-1", time.Unix(100, 0))
	require.NoError(t, store.SaveReport(ctx, r, "model.yaml"))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "model.yaml", runs[0].GraphPath)
	assert.Equal(t, []string{"d"}, runs[0].Fetch)
	assert.True(t, runs[0].StartedAt.Equal(r.StartedAt))
	assert.Equal(t, 3*time.Millisecond, runs[0].Duration)
	assert.Equal(t, 4, runs[0].NodesBefore)
	assert.Equal(t, 6, runs[0].NodesAfter)
	assert.Equal(t, 1, runs[0].Materialized)
	assert.Equal(t, 2, runs[0].Folded)
	assert.Equal(t, 1, runs[0].Skipped)

	folds, err := store.GetFolds(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, r.Folded, folds)

	skips, err := store.GetSkips(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, r.Skipped, skips)
}

func TestSQLiteStore_ListRuns_NewestFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveReport(ctx, testReport("old", time.Unix(100, 0)), ""))
	require.NoError(t, store.SaveReport(ctx, testReport("new", time.Unix(200, 0)), ""))
	require.NoError(t, store.SaveReport(ctx, testReport("mid", time.Unix(150, 0)), ""))

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_DuplicateRunRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveReport(ctx, testReport("x", time.Unix(1, 0)), ""))
	assert.Error(t, store.SaveReport(ctx, testReport("x", time.Unix(2, 0)), ""))

	// The failed transaction leaves the first run intact.
	folds, err := store.GetFolds(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, folds, 2)
}

func TestSQLiteStore_UnknownRun(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	folds, err := store.GetFolds(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, folds)
}

func testReport(id string, started time.Time) *fold.Report {
	return &fold.Report{
		RunID:       id,
		StartedAt:   started,
		Duration:    3 * time.Millisecond,
		Fetch:       []string{"d"},
		NodesBefore: 4,
		NodesAfter:  6,
		Foldable:    3,
		Candidates:  3,
		Materialized: []fold.ShapeRecord{
			{Node: "s", Op: "Shape", Source: "v", Value: "int32[2][5 7]"},
		},
		Folded: []fold.FoldRecord{
			{Node: "b", Slot: 0, Literal: "ConstantFolding/b", DType: "int32", Shape: []int64{1}, Bytes: 4, Rewired: 1},
			{Node: "b", Slot: 1, Literal: "ConstantFolding/b-1", ControlDeps: []string{"p1"}, DType: "int32", Shape: []int64{3}, Bytes: 12, Rewired: 1},
		},
		Skipped: []fold.SkipRecord{
			{Node: "q", Reason: fold.ReasonEvaluation, Detail: "division by zero"},
		},
	}
}
