// Package parse discovers import specifiers in JavaScript, TypeScript, CSS and
// HTML sources. Discovery is an ordered list of strategies: a fast lexical
// scanner, a Tree-sitter syntax walk, and a permissive regular-expression scan.
package parse

import (
	"context"
	"path/filepath"
	"strings"
)

// Kind is the relation an import specifier expresses.
type Kind string

const (
	KindStaticImport    Kind = "static-import"
	KindDynamicImport   Kind = "dynamic-import"
	KindRequire         Kind = "require"
	KindReExport        Kind = "re-export"
	KindCSSURL          Kind = "css-url"
	KindCSSImport       Kind = "css-import"
	KindCSSLayer        Kind = "css-layer"
	KindWorkerReference Kind = "worker-reference"
)

// Lang is the source dialect used to pick a scanner and a grammar.
type Lang string

const (
	LangJS    Lang = "js"
	LangJSX   Lang = "jsx"
	LangTS    Lang = "ts"
	LangTSX   Lang = "tsx"
	LangCSS   Lang = "css"
	LangHTML  Lang = "html"
	LangOther Lang = ""
)

// Range represents a source code range (0-based line and column).
type Range struct {
	Start [2]int `json:"start"` // [line, col]
	End   [2]int `json:"end"`   // [line, col]
}

// Specifier is one import string as written in source, before resolution.
type Specifier struct {
	Value     string `json:"value"`
	Kind      Kind   `json:"kind"`
	Range     *Range `json:"range,omitempty"`
	Condition string `json:"condition,omitempty"` // enclosing if-condition, when known
}

// Source is the input handed to every strategy.
type Source struct {
	Path    string
	Content []byte
	Lang    Lang
}

// Strategy extracts specifiers from a source. An empty result means "no
// answer" and the next strategy is consulted; an error is treated the same way.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, src Source) ([]Specifier, error)
}

// Result is the outcome of running a strategy list.
type Result struct {
	Specifiers []Specifier
	Strategy   string // name of the strategy that answered, "" if none did
	Errors     map[string]error
}

// Discover runs strategies in order and returns the first non-empty answer.
func Discover(ctx context.Context, strategies []Strategy, src Source) Result {
	var res Result
	for _, s := range strategies {
		specs, err := s.Discover(ctx, src)
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]error)
			}
			res.Errors[s.Name()] = err
			continue
		}
		if len(specs) > 0 {
			res.Specifiers = dedupe(specs)
			res.Strategy = s.Name()
			return res
		}
	}
	return res
}

// DefaultStrategies returns the standard fast → tree → regex chain. transpiler
// may be nil.
func DefaultStrategies(transpiler Transpiler) []Strategy {
	return []Strategy{
		FastScanner{},
		&TreeScanner{Transpiler: transpiler},
		RegexScanner{},
	}
}

// dedupe drops repeated (value, kind) pairs, keeping the first occurrence.
func dedupe(specs []Specifier) []Specifier {
	type key struct {
		value string
		kind  Kind
	}
	seen := make(map[key]bool, len(specs))
	out := specs[:0:0]
	for _, s := range specs {
		k := key{s.Value, s.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// LangOf detects the dialect from a path's extension.
func LangOf(path string) Lang {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return LangTS
	case ".tsx":
		return LangTSX
	case ".js", ".mjs", ".cjs":
		return LangJS
	case ".jsx":
		return LangJSX
	case ".css", ".scss", ".sass", ".less", ".pcss", ".styl":
		return LangCSS
	case ".html", ".htm":
		return LangHTML
	default:
		return LangOther
	}
}

// IsRelative reports whether a specifier is resolvable against the importer
// without plugin help.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/")
}

// cssRef turns a CSS reference into an import-style specifier. Unquoted CSS
// references are relative to the stylesheet, so "img/a.png" becomes
// "./img/a.png". External and inline references return "".
func cssRef(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, "\"'")
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "#") {
		return ""
	}
	lower := strings.ToLower(v)
	for _, prefix := range []string{"data:", "http:", "https:", "//", "about:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	if strings.HasPrefix(v, ".") || strings.HasPrefix(v, "/") || strings.HasPrefix(v, "~") || strings.Contains(v, ":") {
		return v
	}
	return "./" + v
}
