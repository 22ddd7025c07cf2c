package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constfold/internal/analysis"
	"constfold/internal/config"
	"constfold/internal/graph"
	"constfold/internal/ir"
	"constfold/internal/storage"
)

const addNGraph = `
version: "1"
nodes:
  - name: a
    op: Const
    attrs:
      dtype: {type: float32}
      value: {tensor: {dtype: float32, shape: [1], floats: [1]}}
  - name: b
    op: Const
    attrs:
      dtype: {type: float32}
      value: {tensor: {dtype: float32, shape: [1], floats: [2]}}
  - name: c
    op: AddN
    inputs: [a, b]
  - name: d
    op: AddN
    inputs: [b, c]
`

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(dir, "runs.db")
	log, _ := test.NewNullLogger()
	return New(cfg, log), dir
}

func TestPipeline_Run(t *testing.T) {
	p, dir := newTestPipeline(t)
	in := filepath.Join(dir, "model.yaml")
	out := filepath.Join(dir, "model.opt.json")
	require.NoError(t, os.WriteFile(in, []byte(addNGraph), 0o644))

	res, err := p.Run(context.Background(), Request{
		GraphPath:  in,
		OutputPath: out,
		Fetch:      []string{"d"},
		Record:     true,
	})
	require.NoError(t, err)
	require.Len(t, res.Report.Folded, 1)
	assert.Equal(t, "ConstantFolding/c", res.Report.Folded[0].Literal)

	assert.Equal(t, []string{"ConstantFolding/c", "b", "d"}, analysis.Names(res.Reachability.Reachable))
	assert.Equal(t, []string{"a", "c"}, analysis.Names(res.Reachability.Unreachable))
	assert.Equal(t, []string{"d"}, res.Reachability.LiteralUses["ConstantFolding/c"])

	// 1. The written graph loads back identically
	def, err := ir.LoadFile(out)
	require.NoError(t, err)
	written, err := graph.FromDef(def)
	require.NoError(t, err)
	assert.Equal(t, graph.ToDef(res.Graph), graph.ToDef(written))

	// 2. The run is in the history
	store, err := storage.NewSQLiteStore(p.Config.Storage.DBPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Report.RunID, runs[0].ID)
	assert.Equal(t, in, runs[0].GraphPath)
	assert.Equal(t, 1, runs[0].Folded)
}

func TestPipeline_RunWithoutRecord(t *testing.T) {
	p, dir := newTestPipeline(t)
	in := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(in, []byte(addNGraph), 0o644))

	_, err := p.Run(context.Background(), Request{GraphPath: in, Fetch: []string{"d"}})
	require.NoError(t, err)
	_, err = os.Stat(p.Config.Storage.DBPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPipeline_ConfigApplied(t *testing.T) {
	p, dir := newTestPipeline(t)
	p.Config.Fold.Prefix = "folded"
	in := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(in, []byte(addNGraph), 0o644))

	res, err := p.Run(context.Background(), Request{GraphPath: in, Fetch: []string{"d"}})
	require.NoError(t, err)
	assert.True(t, res.Graph.Has("folded/c"))
	assert.Equal(t, []string{"folded/c"}, analysis.Names(res.Reachability.Literals))
}

func TestPipeline_Errors(t *testing.T) {
	p, dir := newTestPipeline(t)

	_, err := p.Run(context.Background(), Request{GraphPath: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes:\n  - name: x\n    op: Neg\n    inputs: [y]\n"), 0o644))
	_, err = p.Run(context.Background(), Request{GraphPath: bad})
	assert.ErrorIs(t, err, graph.ErrInvalidGraph)
}
