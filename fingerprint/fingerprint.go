// Package fingerprint composes the deterministic fingerprints of a build: the
// input fingerprint over configuration, engine identity and the source tree,
// the graph fingerprint once a module graph exists, and the plan and output
// fingerprints layered on top of them.
package fingerprint

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ignore"
	"github.com/Avinash-1994/Nexxo-sub001/internal/telemetry"
)

// DefaultExtensions is the allow-list of files that enter the input
// fingerprint: scripts, styles, markup, data and common binary assets.
var DefaultExtensions = []string{
	".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs",
	".json", ".vue", ".svelte",
	".css", ".scss", ".sass", ".less", ".styl", ".pcss",
	".html", ".htm",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif", ".ico",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
}

// Engine identifies the build engine. Build time is deliberately absent.
type Engine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BuildConfig is the resolved configuration that affects build output.
type BuildConfig struct {
	OutDir     string            `json:"outDir"`
	Entries    []string          `json:"entries"`
	Mode       string            `json:"mode"`
	Define     map[string]string `json:"define"`
	Target     string            `json:"target"`
	Extensions []string          `json:"extensions"`
}

// SourceFile is one scanned file: its root-relative slash path and content hash.
type SourceFile struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// InputFingerprint covers configuration, engine identity and the source tree.
type InputFingerprint struct {
	SourceFiles       []SourceFile `json:"sourceFiles"`
	ConfigHash        string       `json:"configHash"`
	EngineFingerprint string       `json:"engineFingerprint"`
	InputHash         string       `json:"inputHash"`
}

// DigestCache serves per-file digests keyed by path and stat information.
type DigestCache interface {
	GetOrCompute(path string, info os.FileInfo, compute func() (string, error)) (digest string, hit bool, err error)
}

// retainer is implemented by digest caches that can drop entries for files
// no longer in the scan.
type retainer interface {
	Retain(paths []string) error
}

// Context carries everything a fingerprint computation reads, and the
// fingerprints computed so far. It is a value: each step returns an updated copy.
type Context struct {
	Root   string
	Config BuildConfig
	Engine Engine

	// Extensions overrides DefaultExtensions.
	Extensions []string
	// Exclude adds ignore patterns to the fixed exclusions.
	Exclude []string
	// Digests is an optional digest cache.
	Digests DigestCache
	// Concurrency bounds parallel file hashing. Zero means GOMAXPROCS.
	Concurrency int
	Telemetry   *telemetry.Telemetry

	Input *InputFingerprint
	Graph string
}

// EngineFingerprint hashes the engine name and version.
func EngineFingerprint(e Engine) string {
	return cas.MustHash(map[string]interface{}{
		"name":    e.Name,
		"version": e.Version,
	})
}

// ConfigFingerprint hashes cfg with the output directory and entries made
// relative to root, so identical projects at different absolute locations
// hash identically.
func ConfigFingerprint(root string, cfg BuildConfig) string {
	if abs, err := filepath.Abs(root); err == nil && root != "" {
		root = abs
	}
	return cas.MustHash(map[string]interface{}{
		"outDir":     rootRelative(root, cfg.OutDir),
		"entries":    rootRelativeAll(root, cfg.Entries),
		"mode":       cfg.Mode,
		"define":     stringMap(cfg.Define),
		"target":     cfg.Target,
		"extensions": strs(cfg.Extensions),
	})
}

// BuildInputFingerprint scans the project and composes its InputFingerprint.
// It needs no graph.
func BuildInputFingerprint(ctx context.Context, bctx Context) (*InputFingerprint, error) {
	ctx, span := bctx.Telemetry.Start(ctx, "fingerprint.input", attribute.String("root", filepath.Base(bctx.Root)))
	fp, err := buildInput(ctx, bctx)
	if err == nil {
		span.SetAttributes(attribute.Int("files", len(fp.SourceFiles)))
	}
	telemetry.End(span, err)
	return fp, err
}

func buildInput(ctx context.Context, bctx Context) (*InputFingerprint, error) {
	log := ctxlog.FromContext(ctx)

	root, err := filepath.Abs(bctx.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	paths, err := collect(root, bctx)
	if err != nil {
		return nil, err
	}

	files, hits, err := hashFiles(ctx, root, paths, bctx)
	if err != nil {
		return nil, err
	}
	bctx.Telemetry.RecordFiles(ctx, len(files), hits)
	if r, ok := bctx.Digests.(retainer); ok {
		abs := make([]string, len(paths))
		for i, rel := range paths {
			abs[i] = filepath.Join(root, filepath.FromSlash(rel))
		}
		if err := r.Retain(abs); err != nil {
			log.Warn("pruning digest cache", "error", err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	fp := &InputFingerprint{
		SourceFiles:       files,
		ConfigHash:        ConfigFingerprint(root, bctx.Config),
		EngineFingerprint: EngineFingerprint(bctx.Engine),
	}
	fp.InputHash = cas.MustHash(map[string]interface{}{
		"configHash":        fp.ConfigHash,
		"engineFingerprint": fp.EngineFingerprint,
		"sourceFiles":       files,
	})

	log.Debug("input fingerprint", "files", len(files), "digestCacheHits", hits, "hash", fp.InputHash)
	return fp, nil
}

// collect walks root and returns the root-relative slash paths of every
// allowed file outside the excluded directories.
func collect(root string, bctx Context) ([]string, error) {
	matcher, err := ignore.LoadFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	if bctx.Config.OutDir != "" {
		matcher.AddDirectory(bctx.Config.OutDir)
	}
	matcher.AddPatterns(bctx.Exclude)

	allowed := make(map[string]bool)
	exts := bctx.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}

	var paths []string
	err = matcher.Walk(root, func(path, rel string, d fs.DirEntry) error {
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// hashFiles hashes every path concurrently. The result order is unspecified.
func hashFiles(ctx context.Context, root string, paths []string, bctx Context) ([]SourceFile, int, error) {
	files := make([]SourceFile, len(paths))
	var hits atomic.Int64

	limit := bctx.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			digest, hit, err := hashFile(filepath.Join(root, filepath.FromSlash(rel)), rel, bctx.Digests)
			if err != nil {
				return err
			}
			if hit {
				hits.Add(1)
			}
			files[i] = SourceFile{Path: rel, Hash: digest}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return files, int(hits.Load()), nil
}

// hashFile hashes one file the way the module graph hashes the node for it.
func hashFile(abs, rel string, cache DigestCache) (string, bool, error) {
	compute := func() (string, error) {
		content, err := os.ReadFile(abs)
		if err != nil {
			return "", fmt.Errorf("reading file %s: %w", rel, err)
		}
		if graph.Classify(rel, "").Text() {
			return cas.HashText(content), nil
		}
		return cas.HashBytes(content), nil
	}

	if cache == nil {
		digest, err := compute()
		return digest, false, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", false, fmt.Errorf("stat %s: %w", rel, err)
	}
	digest, hit, err := cache.GetOrCompute(abs, info, compute)
	if err != nil {
		return "", false, fmt.Errorf("digest cache %s: %w", rel, err)
	}
	return digest, hit, nil
}

// rootRelative rewrites an absolute path under root as a clean slash path
// relative to it. Relative paths are only cleaned.
func rootRelative(root, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) && root != "" {
		if rel, err := filepath.Rel(root, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func rootRelativeAll(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = rootRelative(root, p)
	}
	return out
}

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
