package fingerprint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/graph"
)

// ErrIncomplete is returned when a fingerprint is composed before the
// fingerprints it consumes exist.
var ErrIncomplete = errors.New("fingerprint: missing input or graph fingerprint")

// AttachGraph returns a copy of bctx carrying the graph fingerprint of g.
func AttachGraph(bctx Context, g *graph.Graph) Context {
	bctx.Graph = g.ComputeHash()
	return bctx
}

// PlanFingerprint hashes the build plan derived from the graph together with
// the input and graph fingerprints it was planned from.
func PlanFingerprint(bctx Context, work []graph.WorkItem) (string, error) {
	if bctx.Input == nil || bctx.Graph == "" {
		return "", ErrIncomplete
	}

	items := make([]graph.WorkItem, len(work))
	copy(items, work)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	for i := range items {
		items[i].Path = relPath(bctx.Root, items[i].Path)
	}

	return cas.MustHash(map[string]interface{}{
		"input": bctx.Input.InputHash,
		"graph": bctx.Graph,
		"work":  items,
	}), nil
}

// Artifact is one emitted file: its path under the output directory and its
// content hash.
type Artifact struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// ScanArtifacts hashes every regular file under dir, byte for byte. A missing
// dir yields no artifacts.
func ScanArtifacts(dir string) ([]Artifact, error) {
	var out []Artifact
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, Artifact{Path: filepath.ToSlash(rel), Hash: cas.HashBytes(content)})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) && len(out) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning artifacts: %w", err)
	}
	return out, nil
}

// OutputFingerprint hashes the emitted artifacts together with the plan that
// produced them. Artifact order does not matter.
func OutputFingerprint(plan string, artifacts []Artifact) string {
	sorted := make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		sorted[i] = Artifact{Path: strings.TrimPrefix(filepath.ToSlash(a.Path), "./"), Hash: a.Hash}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	return cas.MustHash(map[string]interface{}{
		"plan":      plan,
		"artifacts": sorted,
	})
}

// Changes lists what differs between two input fingerprints.
type Changes struct {
	Added         []string `json:"added,omitempty"`
	Removed       []string `json:"removed,omitempty"`
	Modified      []string `json:"modified,omitempty"`
	ConfigChanged bool     `json:"configChanged,omitempty"`
	EngineChanged bool     `json:"engineChanged,omitempty"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0 &&
		!c.ConfigChanged && !c.EngineChanged
}

// Diff compares two input fingerprints. A nil prev reports every file of next
// as added. Paths come out sorted.
func Diff(prev, next *InputFingerprint) Changes {
	var c Changes
	if next == nil {
		next = &InputFingerprint{}
	}
	if prev == nil {
		for _, f := range next.SourceFiles {
			c.Added = append(c.Added, f.Path)
		}
		return c
	}

	c.ConfigChanged = prev.ConfigHash != next.ConfigHash
	c.EngineChanged = prev.EngineFingerprint != next.EngineFingerprint

	before := make(map[string]string, len(prev.SourceFiles))
	for _, f := range prev.SourceFiles {
		before[f.Path] = f.Hash
	}
	for _, f := range next.SourceFiles {
		hash, ok := before[f.Path]
		switch {
		case !ok:
			c.Added = append(c.Added, f.Path)
		case hash != f.Hash:
			c.Modified = append(c.Modified, f.Path)
		}
		delete(before, f.Path)
	}
	for path := range before {
		c.Removed = append(c.Removed, path)
	}

	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Modified)
	return c
}

func relPath(root, path string) string {
	if graph.IsVirtual(path) || root == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}
