package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"constfold/internal/config"
	"constfold/internal/eval"
	"constfold/internal/fold"
	"constfold/internal/graph"
	"constfold/internal/ir"
	"constfold/internal/pipeline"
	"constfold/internal/shapes"
	"constfold/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "constfold",
		Short: "Constant folding for dataflow graphs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	configPath string
	dbPath     string

	log = logrus.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the run history database (SQLite); overrides config")

	optimizeCmd.Flags().StringSliceVarP(&fetchFlag, "fetch", "f", nil, "Outputs that must stay computable (repeatable, X or X:k)")
	optimizeCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Where to write the optimized graph (.yaml or .json)")
	optimizeCmd.Flags().BoolVar(&noRecordFlag, "no-record", false, "Do not record the run in the history database")
	evalCmd.Flags().StringSliceVarP(&fetchFlag, "fetch", "f", nil, "Outputs to evaluate (X or X:k)")
	historyCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to show")

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(historyCmd)
}

var (
	fetchFlag    []string
	outputFlag   string
	noRecordFlag bool
	limitFlag    int
)

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg
}

func setupLogging() {
	cfg := loadConfig()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	log.SetOutput(os.Stderr)
}

func loadGraph(path string) *graph.Graph {
	def, err := ir.LoadFile(path)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	g, err := graph.FromDef(def)
	if err != nil {
		log.Fatalf("Invalid graph: %v", err)
	}
	return g
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [graph]",
	Short: "Fold constant subgraphs and materialize statically known shapes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := pipeline.New(loadConfig(), log)
		res, err := p.Run(context.Background(), pipeline.Request{
			GraphPath:  args[0],
			OutputPath: outputFlag,
			Fetch:      fetchFlag,
			Record:     !noRecordFlag,
		})
		if err != nil {
			log.Fatalf("Optimization failed: %v", err)
		}

		r := res.Report
		fmt.Printf("Run %s: %d -> %d nodes in %v\n", r.RunID, r.NodesBefore, r.NodesAfter, r.Duration)
		for _, m := range r.Materialized {
			fmt.Printf("  materialized %-30s %s of %s = %s\n", m.Node, m.Op, m.Source, m.Value)
		}
		for _, f := range r.Folded {
			fmt.Printf("  folded       %-30s -> %s (%s%v)\n", graph.Output{Node: f.Node, Slot: f.Slot}, f.Literal, f.DType, f.Shape)
		}
		for _, s := range r.Skipped {
			fmt.Printf("  skipped      %-30s %s\n", s.Node, s.Reason)
		}
		if n := len(res.Reachability.Unreachable); n > 0 {
			fmt.Printf("%d nodes are no longer reachable from the fetch set\n", n)
		}
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [graph]",
	Short: "Show which nodes are foldable or shape-materializable",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGraph(args[0])
		if err := g.Validate(); err != nil {
			log.Fatalf("Invalid graph: %v", err)
		}
		cls := fold.Classify(g, shapes.NewInferer())

		byKind := map[fold.Kind][]string{}
		for _, n := range g.Nodes() {
			byKind[cls[n.Name]] = append(byKind[cls[n.Name]], n.Name)
		}
		for _, k := range []fold.Kind{fold.Foldable, fold.ShapeMaterializable} {
			names := byKind[k]
			sort.Strings(names)
			fmt.Printf("%s (%d):\n", k, len(names))
			for _, name := range names {
				n, _ := g.Node(name)
				fmt.Printf("  %s\n", graph.Describe(n))
			}
		}
		fmt.Printf("%s: %d nodes\n", fold.Neither, len(byKind[fold.Neither]))
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval [graph]",
	Short: "Evaluate outputs of a graph with the reference interpreter",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGraph(args[0])
		if len(fetchFlag) == 0 {
			log.Fatalf("At least one --fetch is required")
		}
		fetch := make([]graph.Output, len(fetchFlag))
		for i, f := range fetchFlag {
			out, err := graph.ParseOutput(f)
			if err != nil {
				log.Fatalf("Invalid fetch %q: %v", f, err)
			}
			fetch[i] = out
		}
		vals, err := eval.NewInterpreter().Evaluate(context.Background(), g, fetch)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		for i, v := range vals {
			fmt.Printf("%s = %s\n", fetch[i], v)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded optimizer runs",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		ctx := context.Background()
		runs, err := store.ListRuns(ctx, limitFlag)
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %-24s fetch=[%s] folded=%d materialized=%d skipped=%d\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, r.GraphPath,
				strings.Join(r.Fetch, ","), r.Folded, r.Materialized, r.Skipped)
		}
	},
}
