package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Avinash-1994/Nexxo-sub001/fingerprint"
	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/internal/config"
	"github.com/Avinash-1994/Nexxo-sub001/session"
)

var (
	fingerprintJSON  bool
	fingerprintStore bool
	graphJSON        bool
	validateStrict   bool
	classifyKind     string
	classifyNoGraph  bool
)

var errCycles = errors.New("circular dependencies found")

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute the input, graph and plan fingerprints",
	Long: `Scans the project and prints its input fingerprint (configuration, engine
and every source file), then builds the module graph and prints the graph and
plan fingerprints. With --store the fingerprint is recorded in the artifact
store and compared with the previous run.`,
	Args: cobra.NoArgs,
	RunE: runFingerprint,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the module graph",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report cycles and unresolved imports",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <path>...",
	Short: "Classify file changes into a hot-update decision",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the artifact store and digest cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show artifact store usage",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every stored file digest",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine name and version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", config.EngineName, Version)
		return nil
	},
}

// fingerprintReport is the --json output of the fingerprint command.
type fingerprintReport struct {
	Input   *fingerprint.InputFingerprint `json:"input"`
	Graph   string                        `json:"graph"`
	Plan    string                        `json:"plan"`
	Output  string                        `json:"output,omitempty"`
	Outputs int                           `json:"outputs,omitempty"`
	Changes *fingerprint.Changes          `json:"changes,omitempty"`
	Cached  []string                      `json:"cached,omitempty"`
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	cfg := p.cfg

	bctx := fingerprint.Context{
		Root: cfg.Root,
		Config: fingerprint.BuildConfig{
			OutDir:     cfg.OutDir,
			Entries:    cfg.Entries,
			Mode:       cfg.Mode,
			Define:     cfg.Define,
			Target:     cfg.Target,
			Extensions: cfg.Resolve.Extensions,
		},
		Engine:    fingerprint.Engine{Name: cfg.Engine.Name, Version: cfg.Engine.Version},
		Telemetry: p.tel,
	}
	if cfg.Cache.Digests {
		cache, err := p.openDigests()
		if err != nil {
			return err
		}
		defer cache.Close()
		bctx.Digests = cache
	}

	input, err := fingerprint.BuildInputFingerprint(p.ctx, bctx)
	if err != nil {
		return err
	}
	bctx.Input = input

	sess, err := p.newSession(session.Options{})
	if err != nil {
		return err
	}
	bctx = fingerprint.AttachGraph(bctx, sess.Graph())
	plan, err := fingerprint.PlanFingerprint(bctx, sess.Graph().WorkList())
	if err != nil {
		return err
	}

	report := fingerprintReport{Input: input, Graph: bctx.Graph, Plan: plan}

	arts, err := fingerprint.ScanArtifacts(cfg.AbsOutDir())
	if err != nil {
		return err
	}
	if len(arts) > 0 {
		report.Output = fingerprint.OutputFingerprint(plan, arts)
		report.Outputs = len(arts)
	}

	if fingerprintStore {
		st, err := p.openStore()
		if err != nil {
			return fmt.Errorf("opening artifact store: %w", err)
		}
		if st == nil {
			return errors.New("--store needs a cache driver other than none")
		}
		defer st.Close()

		prev, _, err := fingerprint.Latest(p.ctx, st)
		if err != nil {
			return err
		}
		changes := fingerprint.Diff(prev, input)
		report.Changes = &changes
		if report.Cached, err = fingerprint.Unchanged(p.ctx, st, input); err != nil {
			return err
		}
		if err := fingerprint.Record(p.ctx, st, input); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if fingerprintJSON {
		return writeJSON(out, report)
	}

	fmt.Fprintf(out, "input:  %s\n", input.InputHash)
	fmt.Fprintf(out, "config: %s\n", input.ConfigHash)
	fmt.Fprintf(out, "engine: %s (%s %s)\n", input.EngineFingerprint, cfg.Engine.Name, cfg.Engine.Version)
	fmt.Fprintf(out, "files:  %d\n", len(input.SourceFiles))
	fmt.Fprintf(out, "graph:  %s (%d nodes)\n", bctx.Graph, sess.Graph().Len())
	fmt.Fprintf(out, "plan:   %s\n", plan)
	if report.Output != "" {
		fmt.Fprintf(out, "output: %s (%d artifacts)\n", report.Output, report.Outputs)
	}
	if c := report.Changes; c != nil {
		fmt.Fprintf(out, "cached: %d of %d files\n", len(report.Cached), len(input.SourceFiles))
		if c.Empty() {
			fmt.Fprintln(out, "\nNo changes since the last recorded fingerprint.")
		} else {
			fmt.Fprintln(out)
			printPaths(cmd, "A", c.Added)
			printPaths(cmd, "M", c.Modified)
			printPaths(cmd, "D", c.Removed)
			if c.ConfigChanged {
				fmt.Fprintln(out, "configuration changed")
			}
			if c.EngineChanged {
				fmt.Fprintln(out, "engine changed")
			}
		}
	}
	return nil
}

func printPaths(cmd *cobra.Command, prefix string, paths []string) {
	for _, path := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", prefix, path)
	}
}

// graphReport is the --json output of the graph command.
type graphReport struct {
	Hash       string             `json:"hash"`
	Nodes      []*graph.Node      `json:"nodes"`
	Unresolved []graph.Unresolved `json:"unresolved"`
}

func runGraph(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	sess, err := p.newSession(session.Options{})
	if err != nil {
		return err
	}
	g := sess.Graph()

	out := cmd.OutOrStdout()
	if graphJSON {
		return writeJSON(out, graphReport{Hash: sess.Hash(), Nodes: g.Nodes(), Unresolved: g.Unresolved()})
	}

	idx := sess.Index()
	for _, id := range idx.IDs() {
		n := g.Node(id)
		fmt.Fprintf(out, "%s  %s [%s]\n", shortID(id), rel(g.Root(), n.Path), n.Type)
		for _, e := range n.Edges {
			fmt.Fprintf(out, "    -> %s (%s %q)\n", rel(g.Root(), idx.Path(e.To)), e.Kind, e.Specifier)
		}
	}
	fmt.Fprintf(out, "\n%d nodes, graph %s\n", g.Len(), shortID(sess.Hash()))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	sess, err := p.newSession(session.Options{})
	if err != nil {
		return err
	}
	g := sess.Graph()
	out := cmd.OutOrStdout()

	cycles := g.Validate()
	for _, c := range cycles {
		names := make([]string, 0, len(c)+1)
		for _, id := range c {
			names = append(names, rel(g.Root(), sess.Index().Path(id)))
		}
		names = append(names, names[0])
		fmt.Fprintf(out, "cycle: %s\n", strings.Join(names, " -> "))
	}
	for _, u := range g.Unresolved() {
		fmt.Fprintf(out, "unresolved: %s imports %q (%s)\n", rel(g.Root(), u.Importer), u.Specifier, u.Reason)
	}
	fmt.Fprintf(out, "%d nodes, %d cycles, %d unresolved\n", g.Len(), len(cycles), len(g.Unresolved()))

	if validateStrict && len(cycles) > 0 {
		return errCycles
	}
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	kind := hmr.ChangeKind(classifyKind)
	switch kind {
	case hmr.Created, hmr.Updated, hmr.Deleted:
	default:
		return fmt.Errorf("invalid change kind %q: want created, updated or deleted", classifyKind)
	}

	changes := make([]hmr.FileChange, len(args))
	for i, a := range args {
		path := a
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.cfg.Root, path)
		}
		changes[i] = hmr.FileChange{Path: path, Kind: kind}
	}

	var decision hmr.Decision
	if classifyNoGraph {
		c, err := p.classifier()
		if err != nil {
			return err
		}
		decision = c.ClassifyBatch(changes, nil)
	} else {
		sess, err := p.newSession(session.Options{})
		if err != nil {
			return err
		}
		decision = sess.Notify(p.ctx, changes...)
	}
	return writeJSON(cmd.OutOrStdout(), decision)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	st, err := p.openStore()
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	if st == nil {
		fmt.Fprintln(out, "cache disabled")
	} else {
		defer st.Close()
		stats, err := st.Stats(p.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "driver:  %s\nentries: %d\nbytes:   %d\n", p.cfg.Cache.Driver, stats.Entries, stats.Bytes)
	}

	if !p.cfg.Cache.Digests {
		return nil
	}
	cache, err := p.openDigests()
	if err != nil {
		return err
	}
	defer cache.Close()
	ds, err := cache.Stats()
	if err != nil {
		return fmt.Errorf("reading digest cache: %w", err)
	}
	fmt.Fprintf(out, "digests: %d\n", ds.TotalEntries)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	cache, err := p.openDigests()
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := cache.Clear(); err != nil {
		return fmt.Errorf("clearing digest cache: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "digest cache cleared")
	return nil
}

func rel(root, path string) string {
	if graph.IsVirtual(path) {
		return path
	}
	if r, err := filepath.Rel(root, filepath.FromSlash(path)); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return path
}

func init() {
	fingerprintCmd.Flags().BoolVar(&fingerprintJSON, "json", false, "Output as JSON")
	fingerprintCmd.Flags().BoolVar(&fingerprintStore, "store", false, "Record the fingerprint and compare with the previous one")
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Output as JSON")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Exit with an error when cycles are found")
	classifyCmd.Flags().StringVar(&classifyKind, "kind", string(hmr.Updated), "Change kind: created, updated or deleted")
	classifyCmd.Flags().BoolVar(&classifyNoGraph, "no-graph", false, "Classify without building the module graph")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)

	fingerprintCmd.GroupID = groupBuild
	graphCmd.GroupID = groupBuild
	validateCmd.GroupID = groupBuild
	cacheCmd.GroupID = groupBuild
	classifyCmd.GroupID = groupDev

	rootCmd.AddCommand(fingerprintCmd, graphCmd, validateCmd, classifyCmd, cacheCmd, versionCmd)
}
