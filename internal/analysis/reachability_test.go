package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constfold/internal/graph"
)

func newGraph(t *testing.T, nodes ...*graph.Node) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	return g
}

func TestAnalyzeReachability(t *testing.T) {
	g := newGraph(t,
		&graph.Node{Name: "ConstantFolding/c", Op: "Const", Inputs: []string{"^p"}},
		&graph.Node{Name: "p", Op: "NoOp"},
		&graph.Node{Name: "a", Op: "Const"},
		&graph.Node{Name: "b", Op: "Const"},
		&graph.Node{Name: "c", Op: "AddN", Inputs: []string{"a", "b"}},
		&graph.Node{Name: "d", Op: "AddN", Inputs: []string{"b", "ConstantFolding/c"}},
	)

	report := NewAnalyzer(g).AnalyzeReachability([]string{"d:0", "missing"}, "ConstantFolding")
	assert.Equal(t, []string{"ConstantFolding/c", "p", "b", "d"}, Names(report.Reachable))
	assert.Equal(t, []string{"a", "c"}, Names(report.Unreachable))
	assert.Equal(t, []string{"ConstantFolding/c"}, Names(report.Literals))
	assert.Equal(t, map[string][]string{"ConstantFolding/c": {"d"}}, report.LiteralUses)
}

func TestAnalyzeReachability_LiteralUses(t *testing.T) {
	g := newGraph(t,
		&graph.Node{Name: "ConstantFolding/x", Op: "Const"},
		&graph.Node{Name: "ConstantFolding/y", Op: "Const"},
		&graph.Node{Name: "u", Op: "Neg", Inputs: []string{"ConstantFolding/x"}},
		&graph.Node{Name: "v", Op: "AddN", Inputs: []string{"ConstantFolding/x", "ConstantFolding/x", "^ConstantFolding/y"}},
		&graph.Node{Name: "dead", Op: "Neg", Inputs: []string{"ConstantFolding/x"}},
		&graph.Node{Name: "out", Op: "AddN", Inputs: []string{"u", "v"}},
	)

	report := NewAnalyzer(g).AnalyzeReachability([]string{"out"}, "ConstantFolding")
	assert.Equal(t, []string{"ConstantFolding/x", "ConstantFolding/y"}, Names(report.Literals))
	assert.Equal(t, []string{"u", "v"}, report.LiteralUses["ConstantFolding/x"])
	assert.Equal(t, []string{"v"}, report.LiteralUses["ConstantFolding/y"])
	assert.Equal(t, []string{"dead"}, Names(report.Unreachable))
}

func TestAnalyzeReachability_NoFetch(t *testing.T) {
	g := newGraph(t,
		&graph.Node{Name: "a", Op: "Const"},
		&graph.Node{Name: "b", Op: "Neg", Inputs: []string{"a"}},
	)

	report := NewAnalyzer(g).AnalyzeReachability(nil, "")
	assert.Empty(t, report.Reachable)
	assert.Len(t, report.Unreachable, 2)
	assert.Empty(t, report.Literals)
}
