package graph

import (
	"path/filepath"
	"sort"
)

// Index is an immutable reverse-dependency snapshot of a graph. It may be
// stale relative to the live graph; the hot-update classifier reads it without
// touching graph locks.
type Index struct {
	root       string
	ids        []string
	paths      map[string]string   // id -> path
	byPath     map[string]string   // path -> id
	deps       map[string][]string // id -> distinct dependency ids
	dependents map[string][]string // id -> distinct importer ids
}

// Index builds a snapshot of the current graph.
func (g *Graph) Index() *Index {
	g.mu.RLock()
	defer g.mu.RUnlock()

	x := &Index{
		root:       g.root,
		ids:        sortedKeys(g.nodes),
		paths:      make(map[string]string, len(g.nodes)),
		byPath:     make(map[string]string, len(g.nodes)),
		deps:       make(map[string][]string, len(g.nodes)),
		dependents: make(map[string][]string),
	}
	for _, id := range x.ids {
		n := g.nodes[id]
		x.paths[id] = n.Path
		x.byPath[n.Path] = id

		seen := make(map[string]bool, len(n.Edges))
		for _, e := range n.Edges {
			if seen[e.To] {
				continue
			}
			if _, ok := g.nodes[e.To]; !ok {
				continue
			}
			seen[e.To] = true
			x.deps[id] = append(x.deps[id], e.To)
			x.dependents[e.To] = append(x.dependents[e.To], id)
		}
		sort.Strings(x.deps[id])
	}
	// ids are visited in order, so dependents lists are already sorted
	return x
}

// IDs implements View.
func (x *Index) IDs() []string { return x.ids }

// Deps implements View.
func (x *Index) Deps(id string) []string { return x.deps[id] }

// Dependents returns the ids with an edge into id.
func (x *Index) Dependents(id string) []string { return x.dependents[id] }

// Path returns the node path for id.
func (x *Index) Path(id string) string { return x.paths[id] }

// Len returns the number of indexed nodes.
func (x *Index) Len() int { return len(x.ids) }

// Lookup finds the id for an absolute or root-relative path.
func (x *Index) Lookup(path string) (string, bool) {
	if id, ok := x.byPath[path]; ok {
		return id, true
	}
	p := filepath.FromSlash(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(x.root, p)
	}
	id, ok := x.byPath[filepath.ToSlash(filepath.Clean(p))]
	return id, ok
}
