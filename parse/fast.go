package parse

import (
	"context"
	"regexp"
)

// FastScanner extracts likely specifiers with a single lexical pass and no
// syntax tree. It understands comments, string and template literals well
// enough not to report imports that appear inside them.
type FastScanner struct{}

// Name implements Strategy.
func (FastScanner) Name() string { return "fast" }

// Discover implements Strategy.
func (FastScanner) Discover(_ context.Context, src Source) ([]Specifier, error) {
	switch src.Lang {
	case LangJS, LangJSX, LangTS, LangTSX:
		return scanScript(src.Content, 0, 0), nil
	case LangCSS:
		return scanStyle(src.Content), nil
	case LangHTML:
		return scanMarkup(src.Content), nil
	default:
		return nil, nil
	}
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokTemplate // template literal with substitutions, value unknown
	tokPunct
)

type token struct {
	kind  tokKind
	text  string
	start [2]int
	end   [2]int
}

type lexer struct {
	src  []byte
	pos  int
	line int
	col  int
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	l.pos++
}

func (l *lexer) point() [2]int { return [2]int{l.line, l.col} }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// skipTrivia consumes whitespace and comments. When css is set only block
// comments are recognized.
func (l *lexer) skipTrivia(css bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			l.advance()
		case c == '/' && l.peek(1) == '/' && !css:
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		case c == '/' && l.peek(1) == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) && !(l.src[l.pos] == '*' && l.peek(1) == '/') {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

// readQuoted consumes a '...' or "..." literal and returns its raw body.
func (l *lexer) readQuoted() string {
	quote := l.src[l.pos]
	l.advance()
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance()
			l.advance()
			continue
		}
		if c == quote || c == '\n' {
			break
		}
		l.advance()
	}
	body := string(l.src[start:l.pos])
	if l.pos < len(l.src) && l.src[l.pos] == quote {
		l.advance()
	}
	return body
}

// readTemplate consumes a template literal. ok is false when it contains
// substitutions.
func (l *lexer) readTemplate() (string, bool) {
	l.advance()
	start := l.pos
	plain := true
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance()
			l.advance()
			continue
		}
		if c == '`' {
			break
		}
		if c == '$' && l.peek(1) == '{' {
			plain = false
			l.advance()
			l.advance()
			depth := 1
			for l.pos < len(l.src) && depth > 0 {
				switch l.src[l.pos] {
				case '{':
					depth++
				case '}':
					depth--
				case '\'', '"':
					l.readQuoted()
					continue
				}
				l.advance()
			}
			continue
		}
		l.advance()
	}
	body := string(l.src[start:l.pos])
	if l.pos < len(l.src) {
		l.advance()
	}
	return body, plain
}

func scriptTokens(src []byte, line, col int) []token {
	l := &lexer{src: src, line: line, col: col}
	var toks []token
	for {
		l.skipTrivia(false)
		if l.pos >= len(l.src) {
			return toks
		}
		start := l.point()
		c := l.src[l.pos]
		switch {
		case c == '\'' || c == '"':
			body := l.readQuoted()
			toks = append(toks, token{kind: tokString, text: body, start: start, end: l.point()})
		case c == '`':
			body, plain := l.readTemplate()
			kind := tokString
			if !plain {
				kind = tokTemplate
			}
			toks = append(toks, token{kind: kind, text: body, start: start, end: l.point()})
		case isIdentStart(c):
			from := l.pos
			for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
				l.advance()
			}
			toks = append(toks, token{kind: tokIdent, text: string(l.src[from:l.pos]), start: start, end: l.point()})
		case c >= '0' && c <= '9':
			for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.advance()
			}
		default:
			l.advance()
			toks = append(toks, token{kind: tokPunct, text: string(c), start: start, end: l.point()})
		}
	}
}

// scanScript walks the token stream looking for import shapes. line and col
// offset the reported ranges, which lets markup scanning reuse it for inline
// scripts.
func scanScript(src []byte, line, col int) []Specifier {
	toks := scriptTokens(src, line, col)
	var specs []Specifier

	at := func(i int) token {
		if i >= 0 && i < len(toks) {
			return toks[i]
		}
		return token{kind: tokPunct}
	}
	is := func(i int, kind tokKind, text string) bool {
		t := at(i)
		return t.kind == kind && (text == "" || t.text == text) && i >= 0 && i < len(toks)
	}
	emit := func(t token, kind Kind) {
		if t.text == "" {
			return
		}
		specs = append(specs, Specifier{
			Value: t.text,
			Kind:  kind,
			Range: &Range{Start: t.start, End: t.end},
		})
	}

	// statement tracks an open import/export clause waiting for "from".
	var statement Kind
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch {
			case t.text == ";":
				statement = ""
			case t.text == "}" && statement != "" && !is(i+1, tokIdent, "from"):
				statement = ""
			}
			continue
		}
		if t.kind != tokIdent || is(i-1, tokPunct, ".") {
			continue
		}
		switch t.text {
		case "import":
			switch {
			case is(i+1, tokPunct, "("):
				if is(i+2, tokString, "") {
					emit(at(i+2), KindDynamicImport)
					i += 2
				}
			case is(i+1, tokString, ""):
				emit(at(i+1), KindStaticImport)
				i++
				statement = ""
			case is(i+1, tokPunct, "."):
				// import.meta
			default:
				statement = KindStaticImport
			}
		case "export":
			// only "export {...} from", "export * from" and "export type" can re-export
			statement = ""
			if is(i+1, tokPunct, "{") || is(i+1, tokPunct, "*") || is(i+1, tokIdent, "type") {
				statement = KindReExport
			}
		case "from":
			if statement != "" && is(i+1, tokString, "") {
				emit(at(i+1), statement)
				i++
				statement = ""
			}
		case "require":
			if is(i+1, tokPunct, "(") && is(i+2, tokString, "") && is(i+3, tokPunct, ")") {
				emit(at(i+2), KindRequire)
				i += 3
			}
		case "Worker", "SharedWorker":
			if !is(i-1, tokIdent, "new") || !is(i+1, tokPunct, "(") {
				continue
			}
			switch {
			case is(i+2, tokString, ""):
				emit(at(i+2), KindWorkerReference)
			case is(i+2, tokIdent, "new") && is(i+3, tokIdent, "URL") && is(i+4, tokPunct, "(") && is(i+5, tokString, ""):
				emit(at(i+5), KindWorkerReference)
			}
		}
	}
	return specs
}

// scanStyle finds @import/@use/@forward rules and url() references.
func scanStyle(src []byte) []Specifier {
	l := &lexer{src: src}
	var specs []Specifier

	emit := func(raw string, kind Kind, start, end [2]int) {
		v := cssRef(raw)
		if v == "" {
			return
		}
		specs = append(specs, Specifier{Value: v, Kind: kind, Range: &Range{Start: start, End: end}})
	}

	// readURL consumes "url(" ... ")" with the lexer positioned at 'u'.
	readURL := func() string {
		for i := 0; i < 4; i++ {
			l.advance()
		}
		l.skipTrivia(true)
		if l.pos < len(l.src) && (l.src[l.pos] == '"' || l.src[l.pos] == '\'') {
			body := l.readQuoted()
			l.skipTrivia(true)
			if l.pos < len(l.src) && l.src[l.pos] == ')' {
				l.advance()
			}
			return body
		}
		from := l.pos
		for l.pos < len(l.src) && l.src[l.pos] != ')' && l.src[l.pos] != '\n' {
			l.advance()
		}
		body := string(l.src[from:l.pos])
		if l.pos < len(l.src) && l.src[l.pos] == ')' {
			l.advance()
		}
		return body
	}
	atURL := func() bool {
		if l.pos+4 > len(l.src) {
			return false
		}
		w := l.src[l.pos : l.pos+4]
		if (w[0] != 'u' && w[0] != 'U') || (w[1] != 'r' && w[1] != 'R') || (w[2] != 'l' && w[2] != 'L') || w[3] != '(' {
			return false
		}
		return l.pos == 0 || !isIdentPart(l.src[l.pos-1]) && l.src[l.pos-1] != '-'
	}

	for {
		l.skipTrivia(true)
		if l.pos >= len(l.src) {
			return specs
		}
		c := l.src[l.pos]
		switch {
		case c == '@':
			from := l.pos
			l.advance()
			for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '-') {
				l.advance()
			}
			rule := string(l.src[from:l.pos])
			if rule != "@import" && rule != "@use" && rule != "@forward" {
				continue
			}
			l.skipTrivia(true)
			start := l.point()
			var raw string
			switch {
			case l.pos < len(l.src) && (l.src[l.pos] == '"' || l.src[l.pos] == '\''):
				raw = l.readQuoted()
			case atURL():
				raw = readURL()
			default:
				continue
			}
			end := l.point()
			// the rest of the prelude decides between plain and layered imports
			rest := l.pos
			for rest < len(l.src) && l.src[rest] != ';' && l.src[rest] != '\n' {
				rest++
			}
			kind := KindCSSImport
			if layerRe.Match(l.src[l.pos:rest]) {
				kind = KindCSSLayer
			}
			emit(raw, kind, start, end)
		case c == '"' || c == '\'':
			l.readQuoted()
		case atURL():
			start := l.point()
			raw := readURL()
			emit(raw, KindCSSURL, start, l.point())
		default:
			l.advance()
		}
	}
}

var layerRe = regexp.MustCompile(`(?i)(^|\s)layer(\s*\(|\s*$|\s)`)

var (
	scriptSrcRe  = regexp.MustCompile(`(?is)<script\b([^>]*)>(.*?)</script\s*>`)
	srcAttrRe    = regexp.MustCompile(`(?i)\bsrc\s*=\s*["']([^"']+)["']`)
	linkRe       = regexp.MustCompile(`(?i)<link\b[^>]*>`)
	hrefAttrRe   = regexp.MustCompile(`(?i)\bhref\s*=\s*["']([^"']+)["']`)
	stylesheetRe = regexp.MustCompile(`(?i)\brel\s*=\s*["']?(stylesheet|modulepreload)["']?`)
)

// scanMarkup finds script sources, stylesheet links, and imports inside inline
// module scripts.
func scanMarkup(src []byte) []Specifier {
	var specs []Specifier
	for _, m := range scriptSrcRe.FindAllSubmatchIndex(src, -1) {
		attrs := src[m[2]:m[3]]
		if a := srcAttrRe.FindSubmatch(attrs); a != nil {
			if v := cssRef(string(a[1])); v != "" {
				specs = append(specs, Specifier{Value: v, Kind: KindStaticImport, Range: rangeAt(src, m[0], m[1])})
			}
			continue
		}
		line, col := pointAt(src, m[4])
		specs = append(specs, scanScript(src[m[4]:m[5]], line, col)...)
	}
	for _, m := range linkRe.FindAllIndex(src, -1) {
		tag := src[m[0]:m[1]]
		rel := stylesheetRe.FindSubmatch(tag)
		href := hrefAttrRe.FindSubmatch(tag)
		if rel == nil || href == nil {
			continue
		}
		kind := KindCSSImport
		if string(rel[1]) == "modulepreload" {
			kind = KindStaticImport
		}
		if v := cssRef(string(href[1])); v != "" {
			specs = append(specs, Specifier{Value: v, Kind: kind, Range: rangeAt(src, m[0], m[1])})
		}
	}
	return specs
}

func pointAt(src []byte, offset int) (line, col int) {
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}

func rangeAt(src []byte, from, to int) *Range {
	sl, sc := pointAt(src, from)
	el, ec := pointAt(src, to)
	return &Range{Start: [2]int{sl, sc}, End: [2]int{el, ec}}
}
