package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Avinash-1994/Nexxo-sub001/parse"
)

// DefaultExtensions is the probe order for extension-less specifiers.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json", ".css"}

// moduleRef is a resolved module before it becomes a node.
type moduleRef struct {
	id   string
	typ  NodeType
	path string // node path: absolute slash path, virtual id, or path + "?inline"
	file string // OS path to read, empty for virtual modules
}

// ref normalizes a path (absolute, root-relative or virtual) into a moduleRef.
func (g *Graph) ref(path, query string) moduleRef {
	if IsVirtual(path) {
		return moduleRef{id: NodeID(TypeVirtualModule, path), typ: TypeVirtualModule, path: path}
	}
	file := path
	if !filepath.IsAbs(file) {
		file = filepath.Join(g.root, file)
	}
	file = filepath.Clean(file)

	typ := Classify(file, query)
	p := filepath.ToSlash(file)
	if typ == TypeInlineStyleRuntime {
		p += "?inline"
	}
	return moduleRef{id: NodeID(typ, g.relKey(file, typ)), typ: typ, path: p, file: file}
}

// relKey is the machine-independent part of a node id.
func (g *Graph) relKey(file string, typ NodeType) string {
	key := filepath.ToSlash(file)
	if rel, err := filepath.Rel(g.root, file); err == nil && !strings.HasPrefix(rel, "..") {
		key = filepath.ToSlash(rel)
	}
	if typ == TypeInlineStyleRuntime {
		key += "?inline"
	}
	return key
}

// resolve maps a specifier written in importer to a module. reason is set
// when no module could be determined.
func (g *Graph) resolve(ctx context.Context, spec parse.Specifier, importer moduleRef) (moduleRef, UnresolvedReason) {
	value, query := splitQuery(spec.Value)

	if p, ok := g.plugin.ResolveID(ctx, spec.Value, importer.path); ok {
		if IsVirtual(p) {
			return g.ref(p, ""), ""
		}
		file, pq := splitQuery(p)
		if pq != "" {
			query = pq
		}
		if found, ok := g.probe(file); ok {
			return g.ref(found, query), ""
		}
		// plugins may Load paths that do not exist on disk
		return g.ref(file, query), ""
	}

	if !parse.IsRelative(value) {
		return moduleRef{}, ReasonBare
	}

	var candidates []string
	switch {
	case strings.HasPrefix(value, "/"):
		// absolute on disk, else relative to the project root (HTML entry style)
		candidates = []string{filepath.FromSlash(value), filepath.Join(g.root, filepath.FromSlash(value))}
	default:
		dir := g.root
		if importer.file != "" {
			dir = filepath.Dir(importer.file)
		}
		candidates = []string{filepath.Join(dir, filepath.FromSlash(value))}
	}
	for _, c := range candidates {
		if found, ok := g.probe(c); ok {
			return g.ref(found, query), ""
		}
	}
	return g.ref(candidates[len(candidates)-1], query), ""
}

// probe tries base verbatim, then with each extension, then base/index.<ext>.
func (g *Graph) probe(base string) (string, bool) {
	if isFile(base) {
		return base, true
	}
	for _, ext := range g.extensions {
		if isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range g.extensions {
		p := filepath.Join(base, "index"+ext)
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// splitQuery separates "./a.css?inline" into path and query.
func splitQuery(spec string) (string, string) {
	if i := strings.IndexByte(spec, '?'); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}
