package graph

import (
	"context"
	"os"

	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/parse"
)

// scan is the state of one AddEntry or Invalidate call. A node is visited at
// most once per scan, which terminates recursion through cycles.
type scan struct {
	g       *Graph
	ctx     context.Context
	visited map[string]bool // id -> content was available
	dropped map[string][]Unresolved
	changes []GraphChange
}

func (g *Graph) newScan(ctx context.Context) *scan {
	return &scan{
		g:       g,
		ctx:     ctx,
		visited: make(map[string]bool),
		dropped: make(map[string][]Unresolved),
	}
}

// visit ensures ref is in the graph, scanning it and its imports depth-first
// if it is new. ok is false when the module has no content.
func (s *scan) visit(ref moduleRef, target Target) (string, bool) {
	if ok, seen := s.visited[ref.id]; seen {
		return ref.id, ok
	}
	if s.g.Node(ref.id) != nil {
		s.visited[ref.id] = true
		return ref.id, true
	}

	content, ok := s.load(ref)
	s.visited[ref.id] = ok
	if !ok {
		return "", false
	}

	node := s.scanNode(ref, content, target)
	s.g.publish(node, s.dropped[ref.id])
	s.changes = append(s.changes, GraphChange{
		Kind:         ChangeAdded,
		Module:       node.Path,
		ID:           node.ID,
		Dependencies: s.g.edgePaths(node),
	})
	return ref.id, true
}

// load prefers plugin content, then disk.
func (s *scan) load(ref moduleRef) ([]byte, bool) {
	if content, ok := s.g.plugin.Load(s.ctx, ref.path, ref.id); ok {
		return content, true
	}
	if ref.file == "" {
		return nil, false
	}
	content, err := os.ReadFile(ref.file)
	if err != nil {
		ctxlog.FromContext(s.ctx).Debug("graph: unreadable module", "path", ref.path, "error", err)
		return nil, false
	}
	return content, true
}

// scanNode hashes content, discovers and resolves its specifiers, and visits
// every resolved module before returning the unpublished node.
func (s *scan) scanNode(ref moduleRef, content []byte, target Target) *Node {
	node := &Node{
		ID:          ref.id,
		Type:        ref.typ,
		Path:        ref.path,
		ContentHash: contentHash(ref.typ, content),
		Specifiers:  make(map[string]string),
		Target:      target,
	}
	if !ref.typ.Text() {
		return node
	}

	s.dropped[ref.id] = nil
	for _, spec := range s.discover(ref, content) {
		child, reason := s.g.resolve(s.ctx, spec, ref)
		if reason != "" {
			s.drop(ref, spec, "", reason)
			continue
		}
		childTarget := affinity(child.path, target)
		id, ok := s.visit(child, childTarget)
		if !ok {
			s.drop(ref, spec, child.path, ReasonUnreadable)
			continue
		}
		node.Specifiers[spec.Value] = id
		node.Edges = append(node.Edges, Edge{
			From:      ref.id,
			To:        id,
			Kind:      spec.Kind,
			Specifier: spec.Value,
			Loc:       spec.Range,
			Condition: spec.Condition,
			Target:    childTarget,
		})
	}
	return node
}

func (s *scan) discover(ref moduleRef, content []byte) []parse.Specifier {
	name := ref.file
	if name == "" {
		name = ref.path
	}
	lang := parse.LangOf(name)
	switch {
	case ref.typ == TypeVirtualModule && lang == parse.LangOther:
		lang = parse.LangJS
	case ref.typ == TypeInlineStyleRuntime:
		lang = parse.LangCSS
	}

	res := parse.Discover(s.ctx, s.g.strategies, parse.Source{Path: name, Content: content, Lang: lang})
	for strategy, err := range res.Errors {
		ctxlog.FromContext(s.ctx).Debug("graph: discovery strategy failed",
			"path", ref.path, "strategy", strategy, "error", err)
	}
	return res.Specifiers
}

func (s *scan) drop(importer moduleRef, spec parse.Specifier, resolved string, reason UnresolvedReason) {
	s.dropped[importer.id] = append(s.dropped[importer.id], Unresolved{
		Importer:  importer.path,
		Specifier: spec.Value,
		Kind:      spec.Kind,
		Resolved:  resolved,
		Reason:    reason,
	})
}
