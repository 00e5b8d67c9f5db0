// Package hmr classifies file changes into hot-update decisions: apply in
// place, patch a set of modules, or reload the page.
package hmr

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/pathmatch"
)

// Level is the severity of a hot-update decision.
type Level string

const (
	LevelSafe       Level = "SAFE"
	LevelPartial    Level = "PARTIAL"
	LevelFullReload Level = "FULL_RELOAD"
)

func (l Level) severity() int {
	switch l {
	case LevelFullReload:
		return 2
	case LevelPartial:
		return 1
	default:
		return 0
	}
}

// ChangeKind is the kind of file-system event.
type ChangeKind string

const (
	Created ChangeKind = "created"
	Updated ChangeKind = "updated"
	Deleted ChangeKind = "deleted"
)

// FileChange is one file-system event.
type FileChange struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// AllModules is the affected set of a full reload.
const AllModules = "*"

// Decision tells the runtime how to apply a change.
type Decision struct {
	Level                  Level               `json:"level"`
	Reason                 string              `json:"reason"`
	AffectedModules        []string            `json:"affectedModules"`
	GraphChanges           []graph.GraphChange `json:"graphChanges,omitempty"`
	SuggestedOptimizations []string            `json:"suggestedOptimizations,omitempty"`
}

// Rule names consulted by the classifier, in tier order.
const (
	RuleConfigFiles = "config-files"
	RuleEntryPoints = "entry-points"
	RuleSafe        = "safe"
)

// DefaultSplitThreshold is the affected-set size above which a code-splitting
// hint is attached.
const DefaultSplitThreshold = 10

// DefaultRules returns the built-in rule sets.
func DefaultRules() *pathmatch.Matcher {
	return pathmatch.NewMatcher([]pathmatch.Rule{
		{Name: RuleConfigFiles, Paths: []string{
			"**/*.config.{js,cjs,mjs,ts,cts,mts}",
			"**/package.json",
			"**/tsconfig.json",
			"**/tsconfig.*.json",
			"**/nexxo.yaml",
			"**/nexxo.yml",
			"**/.env",
			"**/.env.*",
		}},
		{Name: RuleEntryPoints, Paths: []string{
			"src/main.*",
			"src/index.*",
			"index.html",
		}},
		{Name: RuleSafe, Paths: []string{
			"**/*.{css,scss,sass,less,styl,pcss}",
			"**/*.{png,jpg,jpeg,gif,svg,webp,avif,ico,bmp}",
			"**/*.{woff,woff2,ttf,otf,eot}",
		}},
	})
}

// Index is the read-only dependency index the classifier consults.
// *graph.Index implements it.
type Index interface {
	graph.View
	Lookup(path string) (string, bool)
	Dependents(id string) []string
	Path(id string) string
}

// Options configures a Classifier.
type Options struct {
	// Root makes absolute change paths root-relative before matching.
	Root string
	// Rules overrides the built-in rule sets by name.
	Rules *pathmatch.Matcher
	// SplitThreshold defaults to DefaultSplitThreshold.
	SplitThreshold int
}

// Classifier is stateless; one instance may be shared between goroutines.
type Classifier struct {
	root      string
	rules     *pathmatch.Matcher
	threshold int
}

// New creates a classifier.
func New(opts Options) *Classifier {
	c := &Classifier{
		root:      opts.Root,
		rules:     DefaultRules().Merge(opts.Rules),
		threshold: opts.SplitThreshold,
	}
	if c.threshold <= 0 {
		c.threshold = DefaultSplitThreshold
	}
	return c
}

// Classify decides how to apply one change. index may be nil, which disables
// the dependency tier. Classification never fails: unmatched paths are PARTIAL.
func (c *Classifier) Classify(change FileChange, index Index) Decision {
	rel := c.rel(change.Path)
	base := filepath.Base(rel)

	switch {
	case c.rules.Match(RuleConfigFiles, rel):
		return Decision{
			Level:           LevelFullReload,
			Reason:          fmt.Sprintf("configuration file %s %s", base, change.Kind),
			AffectedModules: []string{AllModules},
			GraphChanges:    c.graphChanges(change, rel, "", index),
		}
	case c.rules.Match(RuleEntryPoints, rel):
		return Decision{
			Level:           LevelFullReload,
			Reason:          fmt.Sprintf("entry point %s %s", rel, change.Kind),
			AffectedModules: []string{AllModules},
			GraphChanges:    c.graphChanges(change, rel, "", index),
		}
	case c.rules.Match(RuleSafe, rel):
		return Decision{
			Level:           LevelSafe,
			Reason:          fmt.Sprintf("%s can be replaced in place", rel),
			AffectedModules: []string{rel},
			GraphChanges:    c.graphChanges(change, rel, "", index),
		}
	}

	if index == nil {
		return Decision{
			Level:           LevelPartial,
			Reason:          fmt.Sprintf("no dependency index; hot-updating %s", rel),
			AffectedModules: []string{rel},
			GraphChanges:    c.graphChanges(change, rel, "", index),
		}
	}
	return c.classifyWithIndex(change, rel, index)
}

func (c *Classifier) classifyWithIndex(change FileChange, rel string, index Index) Decision {
	id, ok := index.Lookup(change.Path)
	if !ok {
		return Decision{
			Level:           LevelPartial,
			Reason:          fmt.Sprintf("%s is not in the module graph", rel),
			AffectedModules: []string{rel},
			GraphChanges:    c.graphChanges(change, rel, "", index),
		}
	}

	affected := []string{rel}
	var importers []string
	for _, dep := range index.Dependents(id) {
		importers = append(importers, c.rel(index.Path(dep)))
	}
	sort.Strings(importers)
	affected = append(affected, importers...)

	if cycles := graph.FindCycles(index, id); len(cycles) > 0 {
		chain := c.describe(cycles[0], index)
		return Decision{
			Level:           LevelFullReload,
			Reason:          fmt.Sprintf("%s is part of a circular dependency: %s", rel, chain),
			AffectedModules: []string{AllModules},
			GraphChanges:    c.graphChanges(change, rel, id, index),
			SuggestedOptimizations: []string{
				fmt.Sprintf("break the cycle %s so %s can be hot-updated", chain, rel),
			},
		}
	}

	d := Decision{
		Level:           LevelPartial,
		Reason:          fmt.Sprintf("hot-updating %s and %d importer(s)", rel, len(importers)),
		AffectedModules: affected,
		GraphChanges:    c.graphChanges(change, rel, id, index),
	}
	if len(affected) > c.threshold {
		d.SuggestedOptimizations = append(d.SuggestedOptimizations, fmt.Sprintf(
			"%d modules are affected by %s; consider code-splitting it behind a dynamic import",
			len(affected), rel))
	}
	return d
}

// ClassifyBatch classifies each change and keeps the most severe outcome.
func (c *Classifier) ClassifyBatch(changes []FileChange, index Index) Decision {
	if len(changes) == 0 {
		return Decision{Level: LevelSafe, Reason: "no changes", AffectedModules: []string{}}
	}

	decisions := make([]Decision, len(changes))
	level := LevelSafe
	for i, ch := range changes {
		decisions[i] = c.Classify(ch, index)
		if decisions[i].Level.severity() > level.severity() {
			level = decisions[i].Level
		}
	}

	out := Decision{Level: level}
	var reasons []string
	affected := newOrderedSet()
	hints := newOrderedSet()
	for _, d := range decisions {
		if level != LevelFullReload || d.Level == LevelFullReload {
			reasons = append(reasons, d.Reason)
		}
		affected.add(d.AffectedModules...)
		hints.add(d.SuggestedOptimizations...)
		out.GraphChanges = append(out.GraphChanges, d.GraphChanges...)
	}
	out.Reason = strings.Join(reasons, "; ")
	out.SuggestedOptimizations = hints.items
	if level == LevelFullReload {
		out.AffectedModules = []string{AllModules}
	} else {
		out.AffectedModules = affected.items
	}
	return out
}

// graphChanges derives the graph-level effect of a change. id is empty when
// the path is not (or not known to be) in the index.
func (c *Classifier) graphChanges(change FileChange, rel, id string, index Index) []graph.GraphChange {
	gc := graph.GraphChange{Module: rel, ID: id}
	switch change.Kind {
	case Created:
		gc.Kind = graph.ChangeAdded
	case Deleted:
		gc.Kind = graph.ChangeRemoved
	default:
		gc.Kind = graph.ChangeModified
	}
	if id != "" && index != nil && gc.Kind != graph.ChangeRemoved {
		for _, dep := range index.Deps(id) {
			gc.Dependencies = append(gc.Dependencies, c.rel(index.Path(dep)))
		}
	}
	return []graph.GraphChange{gc}
}

func (c *Classifier) describe(cycle graph.Cycle, index Index) string {
	parts := make([]string, 0, len(cycle)+1)
	for _, id := range cycle {
		parts = append(parts, c.rel(index.Path(id)))
	}
	parts = append(parts, parts[0])
	return strings.Join(parts, " -> ")
}

// rel turns an absolute path under the root into a slash root-relative path.
func (c *Classifier) rel(path string) string {
	if graph.IsVirtual(path) {
		return path
	}
	p := filepath.FromSlash(path)
	if c.root != "" && filepath.IsAbs(p) {
		if r, err := filepath.Rel(c.root, p); err == nil && !strings.HasPrefix(r, "..") {
			p = r
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if !s.seen[v] {
			s.seen[v] = true
			s.items = append(s.items, v)
		}
	}
}
