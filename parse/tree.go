package parse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Transpiler is the external toolchain that lowers a source file into plain
// JavaScript before it is parsed. It is optional.
type Transpiler interface {
	Transpile(ctx context.Context, path string, content []byte) ([]byte, error)
}

// ErrSyntax reports that the syntax tree contains error nodes.
var ErrSyntax = errors.New("syntax errors in source")

// TreeScanner builds a full Tree-sitter syntax tree and walks import,
// export-from, dynamic import, require, Worker and CSS nodes.
type TreeScanner struct {
	Transpiler Transpiler
}

// Name implements Strategy.
func (*TreeScanner) Name() string { return "tree" }

// Discover implements Strategy.
func (s *TreeScanner) Discover(ctx context.Context, src Source) ([]Specifier, error) {
	content := src.Content
	lang := src.Lang

	if s.Transpiler != nil && isScript(lang) {
		out, err := s.Transpiler.Transpile(ctx, src.Path, content)
		if err != nil {
			return nil, fmt.Errorf("transpiling %s: %w", src.Path, err)
		}
		content = out
		lang = LangJS
	}

	grammar := grammarFor(lang)
	if grammar == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", src.Path, ErrSyntax)
	}

	if lang == LangCSS {
		return extractStyleImports(root, content), nil
	}
	return extractImports(root, content), nil
}

func isScript(lang Lang) bool {
	return lang == LangJS || lang == LangJSX || lang == LangTS || lang == LangTSX
}

func grammarFor(lang Lang) *sitter.Language {
	switch lang {
	case LangJS, LangJSX:
		return javascript.GetLanguage()
	case LangTS:
		return typescript.GetLanguage()
	case LangTSX:
		return tsx.GetLanguage()
	case LangCSS:
		return css.GetLanguage()
	default:
		return nil
	}
}

// extractImports finds all import shapes in a script AST.
func extractImports(node *sitter.Node, content []byte) []Specifier {
	var specs []Specifier

	iter := sitter.NewIterator(node, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}

		switch n.Type() {
		case "import_statement":
			if spec, ok := sourceOf(n, content, KindStaticImport); ok {
				specs = append(specs, spec)
			}
		case "export_statement":
			if spec, ok := sourceOf(n, content, KindReExport); ok {
				specs = append(specs, spec)
			}
		case "import_require_clause":
			// TypeScript: import x = require('./foo')
			if spec, ok := firstString(n, content, KindRequire); ok {
				specs = append(specs, spec)
			}
		case "call_expression":
			if spec, ok := parseDynamicImport(n, content); ok {
				specs = append(specs, spec)
			} else if spec, ok := parseRequireCall(n, content); ok {
				specs = append(specs, spec)
			}
		case "new_expression":
			if spec, ok := parseWorker(n, content); ok {
				specs = append(specs, spec)
			}
		}
	}

	return specs
}

// sourceOf reads the "source" string of an import or export-from statement.
func sourceOf(node *sitter.Node, content []byte, kind Kind) (Specifier, bool) {
	src := node.ChildByFieldName("source")
	if src == nil {
		if kind == KindReExport {
			return Specifier{}, false
		}
		// side-effect imports in some grammar versions keep the string unnamed
		for i := 0; i < int(node.ChildCount()); i++ {
			if c := node.Child(i); c.Type() == "string" {
				src = c
				break
			}
		}
	}
	if src == nil {
		return Specifier{}, false
	}
	return stringSpecifier(src, content, kind, "")
}

func firstString(node *sitter.Node, content []byte, kind Kind) (Specifier, bool) {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c.Type() == "string" {
			return stringSpecifier(c, content, kind, condition(node, content))
		}
	}
	return Specifier{}, false
}

// parseDynamicImport checks for import("./foo") calls.
func parseDynamicImport(node *sitter.Node, content []byte) (Specifier, bool) {
	callee := node.ChildByFieldName("function")
	if callee == nil || callee.Type() != "import" {
		return Specifier{}, false
	}
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return Specifier{}, false
	}
	return firstArgString(args, content, KindDynamicImport, condition(node, content))
}

// parseRequireCall checks for CommonJS require("./foo") calls.
func parseRequireCall(node *sitter.Node, content []byte) (Specifier, bool) {
	callee := node.ChildByFieldName("function")
	if callee == nil || callee.Type() != "identifier" || callee.Content(content) != "require" {
		return Specifier{}, false
	}
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return Specifier{}, false
	}
	return firstArgString(args, content, KindRequire, condition(node, content))
}

// parseWorker checks for new Worker('./w.js') and
// new Worker(new URL('./w.js', import.meta.url)).
func parseWorker(node *sitter.Node, content []byte) (Specifier, bool) {
	ctor := node.ChildByFieldName("constructor")
	if ctor == nil {
		return Specifier{}, false
	}
	name := ctor.Content(content)
	if name != "Worker" && name != "SharedWorker" {
		return Specifier{}, false
	}
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return Specifier{}, false
	}
	first := args.NamedChild(0)
	switch first.Type() {
	case "string", "template_string":
		return stringSpecifier(first, content, KindWorkerReference, condition(node, content))
	case "new_expression":
		inner := first.ChildByFieldName("constructor")
		innerArgs := first.ChildByFieldName("arguments")
		if inner == nil || inner.Content(content) != "URL" || innerArgs == nil {
			return Specifier{}, false
		}
		return firstArgString(innerArgs, content, KindWorkerReference, condition(node, content))
	}
	return Specifier{}, false
}

func firstArgString(args *sitter.Node, content []byte, kind Kind, cond string) (Specifier, bool) {
	if args.NamedChildCount() == 0 {
		return Specifier{}, false
	}
	first := args.NamedChild(0)
	switch first.Type() {
	case "string":
		return stringSpecifier(first, content, kind, cond)
	case "template_string":
		// only templates without substitutions name a static module
		for i := 0; i < int(first.NamedChildCount()); i++ {
			if first.NamedChild(i).Type() == "template_substitution" {
				return Specifier{}, false
			}
		}
		return stringSpecifier(first, content, kind, cond)
	}
	return Specifier{}, false
}

func stringSpecifier(n *sitter.Node, content []byte, kind Kind, cond string) (Specifier, bool) {
	value := strings.Trim(n.Content(content), "\"'`")
	if value == "" {
		return Specifier{}, false
	}
	r := nodeRange(n)
	return Specifier{Value: value, Kind: kind, Range: &r, Condition: cond}, true
}

// condition returns the test of the nearest enclosing if statement.
func condition(node *sitter.Node, content []byte) string {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "if_statement":
			if c := p.ChildByFieldName("condition"); c != nil {
				text := strings.TrimSpace(c.Content(content))
				text = strings.TrimPrefix(text, "(")
				text = strings.TrimSuffix(text, ")")
				return strings.TrimSpace(text)
			}
			return ""
		case "function_declaration", "arrow_function", "function", "method_definition", "program":
			return ""
		}
	}
	return ""
}

// extractStyleImports walks a CSS AST for @import rules and url() values.
func extractStyleImports(node *sitter.Node, content []byte) []Specifier {
	var specs []Specifier

	iter := sitter.NewIterator(node, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}

		switch n.Type() {
		case "import_statement":
			kind := KindCSSImport
			var target *sitter.Node
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				switch c.Type() {
				case "string_value":
					if target == nil {
						target = c
					}
				case "call_expression":
					fn := functionName(c, content)
					if fn == "layer" {
						kind = KindCSSLayer
					} else if fn == "url" && target == nil {
						target = c
					}
				case "plain_value", "identifier":
					if c.Content(content) == "layer" {
						kind = KindCSSLayer
					}
				}
			}
			if target == nil {
				continue
			}
			raw := target.Content(content)
			if target.Type() == "call_expression" {
				raw = urlArgument(target, content)
			}
			if v := cssRef(raw); v != "" {
				r := nodeRange(target)
				specs = append(specs, Specifier{Value: v, Kind: kind, Range: &r})
			}
		case "call_expression":
			if functionName(n, content) != "url" || insideImport(n) {
				continue
			}
			if v := cssRef(urlArgument(n, content)); v != "" {
				r := nodeRange(n)
				specs = append(specs, Specifier{Value: v, Kind: KindCSSURL, Range: &r})
			}
		}
	}

	return specs
}

func functionName(call *sitter.Node, content []byte) string {
	for i := 0; i < int(call.NamedChildCount()); i++ {
		c := call.NamedChild(i)
		if c.Type() == "function_name" {
			return strings.ToLower(c.Content(content))
		}
	}
	return ""
}

func urlArgument(call *sitter.Node, content []byte) string {
	for i := 0; i < int(call.NamedChildCount()); i++ {
		c := call.NamedChild(i)
		if c.Type() != "arguments" {
			continue
		}
		text := c.Content(content)
		text = strings.TrimPrefix(text, "(")
		text = strings.TrimSuffix(text, ")")
		return text
	}
	return ""
}

func insideImport(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "import_statement" {
			return true
		}
	}
	return false
}

func nodeRange(node *sitter.Node) Range {
	startPoint := node.StartPoint()
	endPoint := node.EndPoint()

	return Range{
		Start: [2]int{int(startPoint.Row), int(startPoint.Column)},
		End:   [2]int{int(endPoint.Row), int(endPoint.Column)},
	}
}
