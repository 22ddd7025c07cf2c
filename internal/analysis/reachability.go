package analysis

import (
	"strings"

	"constfold/internal/graph"
	"constfold/internal/ops"
)

// ReachabilityReport splits the nodes of a graph by whether a fetch needs them.
type ReachabilityReport struct {
	Reachable   []*graph.Node
	Unreachable []*graph.Node
	// Literals lists the reachable literal nodes created by folding.
	Literals []*graph.Node
	// LiteralUses maps each entry of Literals to the reachable nodes that
	// read it, in graph order.
	LiteralUses map[string][]string
}

// Analyzer performs reachability analysis on a graph.
type Analyzer struct {
	g *graph.Graph
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(g *graph.Graph) *Analyzer {
	return &Analyzer{g: g}
}

// AnalyzeReachability walks data and control edges backwards from fetch.
// Unreachable nodes are what a pruning pass would remove; nothing is
// modified here. Unknown fetch names are ignored. Output keeps graph order.
func (a *Analyzer) AnalyzeReachability(fetch []string, literalPrefix string) *ReachabilityReport {
	report := &ReachabilityReport{
		Reachable:   []*graph.Node{},
		Unreachable: []*graph.Node{},
		LiteralUses: map[string][]string{},
	}

	seen := make(map[string]bool)
	var stack []string

	// 1. Seed with fetched nodes
	for _, f := range fetch {
		out, err := graph.ParseOutput(f)
		if err != nil || !a.g.Has(out.Node) || seen[out.Node] {
			continue
		}
		seen[out.Node] = true
		stack = append(stack, out.Node)
	}

	// 2. Walk producers
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range a.g.GetDependencies(cur) {
			if !seen[dep.Name] {
				seen[dep.Name] = true
				stack = append(stack, dep.Name)
			}
		}
	}

	for _, n := range a.g.Nodes() {
		if !seen[n.Name] {
			report.Unreachable = append(report.Unreachable, n)
			continue
		}
		report.Reachable = append(report.Reachable, n)
		if isFoldedLiteral(n, literalPrefix) {
			report.Literals = append(report.Literals, n)
		}
	}

	for _, lit := range report.Literals {
		uses := []string{}
		for _, d := range a.g.GetDependents(lit.Name) {
			if seen[d.Name] {
				uses = append(uses, d.Name)
			}
		}
		report.LiteralUses[lit.Name] = uses
	}
	return report
}

func isFoldedLiteral(n *graph.Node, prefix string) bool {
	return prefix != "" && ops.IsLiteral(n.Op) && strings.HasPrefix(n.Name, prefix+"/")
}

// Names returns the names of nodes, in order.
func Names(nodes []*graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
