package graph

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/parse"
	"github.com/Avinash-1994/Nexxo-sub001/plugin"
)

// Options configures a Graph.
type Options struct {
	// Root is the project root. Node ids are derived from root-relative paths.
	Root string
	// Plugin supplies ResolveID and Load. Nil means plugin.None.
	Plugin plugin.Plugin
	// Strategies is the ordered specifier discovery list. Nil means
	// parse.DefaultStrategies(nil).
	Strategies []parse.Strategy
	// Extensions is the resolution probe order. Nil means DefaultExtensions.
	Extensions []string
	// Target is the affinity given to entries without a file-name hint.
	// Empty means TargetUniversal.
	Target Target
}

// Graph owns every node by id. Mutations (AddEntry, Invalidate, Remove) are
// serialized; readers take a short read lock and never wait for a scan, since
// nodes are replaced whole once their scan completes.
type Graph struct {
	root       string
	plugin     plugin.Plugin
	strategies []parse.Strategy
	extensions []string
	target     Target

	writeMu sync.Mutex

	mu         sync.RWMutex
	nodes      map[string]*Node
	unresolved map[string][]Unresolved // importer id -> dropped specifiers
}

// New creates an empty graph.
func New(opts Options) *Graph {
	root := opts.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	g := &Graph{
		root:       filepath.Clean(root),
		plugin:     opts.Plugin,
		strategies: opts.Strategies,
		extensions: opts.Extensions,
		target:     opts.Target,
		nodes:      make(map[string]*Node),
		unresolved: make(map[string][]Unresolved),
	}
	if g.plugin == nil {
		g.plugin = plugin.None
	}
	if g.strategies == nil {
		g.strategies = parse.DefaultStrategies(nil)
	}
	if g.extensions == nil {
		g.extensions = DefaultExtensions
	}
	if g.target == "" {
		g.target = TargetUniversal
	}
	return g
}

// Root returns the absolute project root.
func (g *Graph) Root() string { return g.root }

// AddEntry adds path and everything it transitively imports. Nodes already in
// the graph are not rescanned. ok is false when the entry itself has no
// content.
func (g *Graph) AddEntry(ctx context.Context, path string) (id string, ok bool) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	s := g.newScan(ctx)
	ref := g.ref(splitQuery(path))
	id, ok = s.visit(ref, affinity(ref.path, g.target))
	ctxlog.FromContext(ctx).Debug("graph: entry added",
		"path", ref.path, "ok", ok, "scanned", len(s.visited), "nodes", g.Len())
	return id, ok
}

// Invalidate rescans the node for path, creating it if unseen. Unchanged bytes
// report no change. A node whose content can no longer be read is removed.
// Callers batch invalidations and call ComputeHash once per batch.
func (g *Graph) Invalidate(ctx context.Context, path string) []GraphChange {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	return g.invalidateLocked(ctx, g.ref(splitQuery(path)), false)
}

// Retry force-rescans every importer with an unreadable gap, so files that
// have appeared since are linked in. Bare specifiers are not retried.
func (g *Graph) Retry(ctx context.Context) []GraphChange {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.RLock()
	var paths []string
	for id, list := range g.unresolved {
		for _, u := range list {
			if u.Reason == ReasonUnreadable {
				if n, ok := g.nodes[id]; ok {
					paths = append(paths, n.Path)
				}
				break
			}
		}
	}
	g.mu.RUnlock()
	sort.Strings(paths)

	var changes []GraphChange
	for _, p := range paths {
		changes = append(changes, g.invalidateLocked(ctx, g.ref(splitQuery(p)), true)...)
	}
	return changes
}

// invalidateLocked rescans ref. Without force, unchanged bytes skip the scan.
func (g *Graph) invalidateLocked(ctx context.Context, ref moduleRef, force bool) []GraphChange {
	s := g.newScan(ctx)
	existing := g.Node(ref.id)
	if existing == nil {
		s.visit(ref, affinity(ref.path, g.target))
		return s.changes
	}

	content, ok := s.load(ref)
	if !ok {
		return g.removeLocked(ref.id)
	}
	if !force && contentHash(ref.typ, content) == existing.ContentHash {
		return nil
	}
	s.visited[ref.id] = true
	node := s.scanNode(ref, content, existing.Target)
	g.publish(node, s.dropped[ref.id])
	if node.digest == existing.digest {
		return nil
	}
	s.changes = append(s.changes, GraphChange{
		Kind:         ChangeModified,
		Module:       node.Path,
		ID:           node.ID,
		Dependencies: g.edgePaths(node),
	})
	ctxlog.FromContext(ctx).Debug("graph: node invalidated",
		"path", node.Path, "edges", len(node.Edges), "changes", len(s.changes))
	return s.changes
}

// Remove drops the node for path and every edge pointing at it. Importers are
// reported as modified and the dropped specifiers become Unresolved.
func (g *Graph) Remove(ctx context.Context, path string) []GraphChange {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	ref := g.ref(splitQuery(path))
	changes := g.removeLocked(ref.id)
	if len(changes) > 0 {
		ctxlog.FromContext(ctx).Debug("graph: node removed", "path", ref.path, "importers", len(changes)-1)
	}
	return changes
}

func (g *Graph) removeLocked(id string) []GraphChange {
	g.mu.Lock()
	defer g.mu.Unlock()

	gone, ok := g.nodes[id]
	if !ok {
		return nil
	}
	delete(g.nodes, id)
	delete(g.unresolved, id)
	changes := []GraphChange{{Kind: ChangeRemoved, Module: gone.Path, ID: id}}

	for _, importerID := range sortedKeys(g.nodes) {
		n := g.nodes[importerID]
		var kept []Edge
		var dropped []Unresolved
		for _, e := range n.Edges {
			if e.To == id {
				dropped = append(dropped, Unresolved{
					Importer:  n.Path,
					Specifier: e.Specifier,
					Kind:      e.Kind,
					Resolved:  gone.Path,
					Reason:    ReasonUnreadable,
				})
				continue
			}
			kept = append(kept, e)
		}
		if len(dropped) == 0 {
			continue
		}
		next := *n
		next.Edges = kept
		next.Specifiers = make(map[string]string, len(n.Specifiers))
		for spec, to := range n.Specifiers {
			if to != id {
				next.Specifiers[spec] = to
			}
		}
		next.digest = nodeDigest(&next)
		g.nodes[importerID] = &next
		g.unresolved[importerID] = append(g.unresolved[importerID], dropped...)

		var deps []string
		for _, e := range kept {
			if d, ok := g.nodes[e.To]; ok {
				deps = append(deps, d.Path)
			}
		}
		changes = append(changes, GraphChange{Kind: ChangeModified, Module: next.Path, ID: importerID, Dependencies: deps})
	}
	return changes
}

// publish swaps in a fully scanned node and its dropped specifiers.
func (g *Graph) publish(n *Node, dropped []Unresolved) {
	n.digest = nodeDigest(n)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
	if len(dropped) > 0 {
		g.unresolved[n.ID] = dropped
	} else {
		delete(g.unresolved, n.ID)
	}
}

// Validate reports every simple cycle. Cycles are diagnostics; the graph is
// still usable.
func (g *Graph) Validate() []Cycle {
	return FindCycles(g.Index(), "")
}

// ComputeHash returns the graph fingerprint: every node's id, content hash and
// sorted edges, folded in id order.
func (g *Graph) ComputeHash() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fold := cas.NewFold()
	for _, id := range sortedKeys(g.nodes) {
		fold.Add(id, g.nodes[id].digest)
	}
	return fold.Sum()
}

// Node returns the node with id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Lookup finds the node for a path (absolute, root-relative or virtual).
func (g *Graph) Lookup(path string) (*Node, bool) {
	p, q := splitQuery(path)
	n := g.Node(g.ref(p, q).id)
	return n, n != nil
}

// Nodes returns every node ordered by id.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for _, id := range sortedKeys(g.nodes) {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependents returns the ids of nodes with an edge into id, found by scanning
// every node.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, from := range sortedKeys(g.nodes) {
		for _, e := range g.nodes[from].Edges {
			if e.To == id {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Unresolved returns every specifier dropped during scanning, sorted by
// importer then specifier.
func (g *Graph) Unresolved() []Unresolved {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Unresolved
	for _, list := range g.unresolved {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importer != out[j].Importer {
			return out[i].Importer < out[j].Importer
		}
		return out[i].Specifier < out[j].Specifier
	})
	return out
}

// WorkList returns one item per node, ordered by path, for the transform
// executor.
func (g *Graph) WorkList() []WorkItem {
	nodes := g.Nodes()
	items := make([]WorkItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, WorkItem{ID: n.ID, Path: n.Path, Type: n.Type, ContentHash: n.ContentHash, Target: n.Target})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items
}

func (g *Graph) edgePaths(n *Node) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	for _, e := range n.Edges {
		if d, ok := g.nodes[e.To]; ok && !seen[d.Path] {
			seen[d.Path] = true
			out = append(out, d.Path)
		}
	}
	return out
}

func contentHash(t NodeType, content []byte) string {
	if t.Text() {
		return cas.HashText(content)
	}
	return cas.HashBytes(content)
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
