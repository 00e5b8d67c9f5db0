// Package main provides the nexxo CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/internal/config"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/internal/digestcache"
	"github.com/Avinash-1994/Nexxo-sub001/internal/redisstore"
	"github.com/Avinash-1994/Nexxo-sub001/internal/sqlitestore"
	"github.com/Avinash-1994/Nexxo-sub001/internal/telemetry"
	"github.com/Avinash-1994/Nexxo-sub001/pathmatch"
	"github.com/Avinash-1994/Nexxo-sub001/session"
	"github.com/Avinash-1994/Nexxo-sub001/store"
)

// Version is the current nexxo CLI version
var Version = config.EngineVersion

var (
	rootFlag     string
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "nexxo",
	Short:         "Nexxo - module graph, fingerprints and hot updates",
	Long:          `Nexxo builds the module graph of a web project, computes deterministic build fingerprints, and classifies file changes into hot-update decisions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command groups for organized help output
const (
	groupBuild = "build"
	groupDev   = "dev"
)

// project is everything a command needs after flags and config are resolved.
type project struct {
	cfg *config.Config
	ctx context.Context
	tel *telemetry.Telemetry
}

// loadProject reads the config and sets up logging for one command run.
func loadProject(cmd *cobra.Command) (*project, error) {
	cfg, err := config.Load(configFlag, rootFlag)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.New(cmd.ErrOrStderr(), logLevelFlag)
	ctx := ctxlog.WithLogger(cmd.Context(), logger)

	tel, err := telemetry.New(telemetry.Options{})
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	return &project{cfg: cfg, ctx: ctx, tel: tel}, nil
}

// graphOptions maps the config onto graph options.
func (p *project) graphOptions() graph.Options {
	return graph.Options{
		Root:       p.cfg.Root,
		Extensions: p.cfg.Resolve.Extensions,
		Target:     graph.Target(p.cfg.Target),
	}
}

// classifier builds the hot-update classifier with configured rule overrides.
func (p *project) classifier() (*hmr.Classifier, error) {
	rules, err := p.ruleOverrides()
	if err != nil {
		return nil, err
	}
	return hmr.New(hmr.Options{
		Root:           p.cfg.Root,
		Rules:          rules,
		SplitThreshold: p.cfg.HMR.SplitThreshold,
	}), nil
}

// ruleOverrides reads the rules file, then applies the patterns set in the
// config itself.
func (p *project) ruleOverrides() (*pathmatch.Matcher, error) {
	rules := pathmatch.NewMatcher(nil)
	if p.cfg.HMR.RulesFile != "" {
		loaded, err := pathmatch.LoadRulesOrEmpty(filepath.Join(p.cfg.Root, p.cfg.HMR.RulesFile))
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	if len(p.cfg.HMR.ConfigFiles) > 0 {
		rules.SetRule(hmr.RuleConfigFiles, p.cfg.HMR.ConfigFiles)
	}
	if len(p.cfg.HMR.EntryPatterns) > 0 {
		rules.SetRule(hmr.RuleEntryPoints, p.cfg.HMR.EntryPatterns)
	}
	if len(p.cfg.HMR.SafePatterns) > 0 {
		rules.SetRule(hmr.RuleSafe, p.cfg.HMR.SafePatterns)
	}
	return rules, nil
}

// newSession creates and builds a session over the configured entries.
// Entry errors are logged; the partial graph is still returned.
func (p *project) newSession(opts session.Options) (*session.Session, error) {
	c, err := p.classifier()
	if err != nil {
		return nil, err
	}
	opts.Graph = p.graphOptions()
	opts.Entries = p.cfg.Entries
	opts.Classifier = c
	opts.Telemetry = p.tel
	if opts.Debounce == 0 {
		opts.Debounce = p.cfg.Dev.Debounce
	}

	sess := session.New(opts)
	if err := sess.Build(p.ctx); err != nil {
		ctxlog.FromContext(p.ctx).Warn("some entries could not be loaded", "error", err)
	}
	return sess, nil
}

// openDigests opens the file digest cache of the project.
func (p *project) openDigests() (*digestcache.Cache, error) {
	cache, err := digestcache.Open(digestcache.DefaultPath(p.cfg.Root))
	if err != nil {
		return nil, fmt.Errorf("opening digest cache: %w", err)
	}
	return cache, nil
}

// openStore opens the configured artifact store. The "none" driver returns nil.
func (p *project) openStore() (store.ArtifactStore, error) {
	switch p.cfg.Cache.Driver {
	case "sqlite":
		path := p.cfg.Cache.Path
		if path == "" {
			path = sqlitestore.DefaultPath(p.cfg.Root)
		}
		st, err := sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "redis":
		st, err := redisstore.New(redisstore.Options{URL: p.cfg.Cache.RedisURL, TTL: p.cfg.Cache.TTL})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortID safely truncates an ID string to 12 characters.
func shortID(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: nexxo.yaml in the root)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupBuild, Title: "Build:"},
		&cobra.Group{ID: groupDev, Title: "Development:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
