// Package graph provides the module graph: files and virtual modules keyed by a
// stable identifier, joined by outgoing import edges.
package graph

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/parse"
)

// NodeType represents the type of a node.
type NodeType string

const (
	TypeSourceFile         NodeType = "source-file"
	TypeVirtualModule      NodeType = "virtual-module"
	TypeStylesheet         NodeType = "stylesheet"
	TypeStylesheetModule   NodeType = "stylesheet-module"
	TypeStyleAsset         NodeType = "style-asset"
	TypeInlineStyleRuntime NodeType = "inline-style-runtime"
)

// Text reports whether nodes of this type are scanned for imports and hashed
// with line endings normalized.
func (t NodeType) Text() bool {
	return t != TypeStyleAsset
}

// EdgeKind represents the relation an edge expresses.
type EdgeKind = parse.Kind

// Target is the runtime a module is destined for.
type Target string

const (
	TargetClient    Target = "client"
	TargetServer    Target = "server"
	TargetEdge      Target = "edge"
	TargetUniversal Target = "universal"
)

// Node represents a node in the graph. Published nodes are never mutated; a
// rescan replaces the whole value.
type Node struct {
	ID          string            `json:"id"`
	Type        NodeType          `json:"type"`
	Path        string            `json:"path"`
	ContentHash string            `json:"contentHash"`
	Edges       []Edge            `json:"edges,omitempty"`
	Specifiers  map[string]string `json:"specifiers,omitempty"` // specifier -> resolved node id
	Target      Target            `json:"target,omitempty"`

	digest string // node's contribution to the graph fingerprint
}

// Edge represents an edge in the graph. Edges are owned by their From node.
type Edge struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Kind      EdgeKind     `json:"kind"`
	Specifier string       `json:"specifier"`
	Loc       *parse.Range `json:"loc,omitempty"`
	Condition string       `json:"condition,omitempty"`
	Target    Target       `json:"target,omitempty"`
}

// ChangeKind describes how a node changed during a mutation.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// GraphChange records one node-level change produced by a mutation.
type GraphChange struct {
	Kind         ChangeKind `json:"kind"`
	Module       string     `json:"module"` // node path
	ID           string     `json:"id,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"` // paths of outgoing edges
}

// Cycle is a sequence of node ids where the last one imports the first.
type Cycle []string

// Contains reports whether id is part of the cycle.
func (c Cycle) Contains(id string) bool {
	for _, v := range c {
		if v == id {
			return true
		}
	}
	return false
}

// UnresolvedReason explains why a specifier produced no edge.
type UnresolvedReason string

const (
	ReasonBare       UnresolvedReason = "bare"       // package specifier without plugin help
	ReasonUnreadable UnresolvedReason = "unreadable" // resolved, but no plugin or disk content
)

// Unresolved is a specifier that was silently dropped during a scan.
type Unresolved struct {
	Importer  string           `json:"importer"` // importer node path
	Specifier string           `json:"specifier"`
	Kind      EdgeKind         `json:"kind"`
	Resolved  string           `json:"resolved,omitempty"`
	Reason    UnresolvedReason `json:"reason"`
}

// WorkItem is one unit handed to the transform executor.
type WorkItem struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Type        NodeType `json:"type"`
	ContentHash string   `json:"contentHash"`
	Target      Target   `json:"target,omitempty"`
}

var (
	styleExts = map[string]bool{
		".css": true, ".scss": true, ".sass": true, ".less": true, ".styl": true, ".pcss": true,
	}
	assetExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true,
		".avif": true, ".ico": true, ".bmp": true,
		".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	}
)

// IsVirtual reports whether a module id names generated content rather than
// a file.
func IsVirtual(path string) bool {
	return strings.HasPrefix(path, "virtual:") || strings.HasPrefix(path, "\x00")
}

// Classify determines a node type from a path and an optional specifier query.
func Classify(path, query string) NodeType {
	if IsVirtual(path) {
		return TypeVirtualModule
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case styleExts[ext]:
		if hasQueryFlag(query, "inline") {
			return TypeInlineStyleRuntime
		}
		if strings.HasSuffix(strings.ToLower(strings.TrimSuffix(path, filepath.Ext(path))), ".module") {
			return TypeStylesheetModule
		}
		return TypeStylesheet
	case assetExts[ext]:
		return TypeStyleAsset
	default:
		return TypeSourceFile
	}
}

func hasQueryFlag(query, flag string) bool {
	for _, part := range strings.Split(query, "&") {
		if part == flag || strings.HasPrefix(part, flag+"=") {
			return true
		}
	}
	return false
}

// affinity derives a target from file-name hints, else keeps inherited.
func affinity(path string, inherited Target) Target {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, ".server."):
		return TargetServer
	case strings.Contains(base, ".client."):
		return TargetClient
	case strings.Contains(base, ".edge."):
		return TargetEdge
	}
	return inherited
}

// NodeID computes the stable identifier for (type, key), where key is the
// root-relative slash path or the virtual module id.
func NodeID(t NodeType, key string) string {
	id, err := cas.NodeID(string(t), map[string]interface{}{"path": key})
	if err != nil {
		// a string map always marshals
		panic(err)
	}
	return id
}

// nodeDigest folds id, content hash and sorted edges into one digest.
func nodeDigest(n *Node) string {
	edges := make([]string, 0, len(n.Edges))
	for _, e := range n.Edges {
		edges = append(edges, string(e.Kind)+">"+e.To)
	}
	sort.Strings(edges)
	return cas.MustHash(map[string]interface{}{
		"id":          n.ID,
		"contentHash": n.ContentHash,
		"edges":       edges,
	})
}
