package parse

import (
	"context"
	"regexp"
)

// RegexScanner is the last-resort strategy: a permissive pattern scan that
// tolerates sources no grammar accepts.
type RegexScanner struct{}

var (
	importFromRe = regexp.MustCompile(`(?m)\b(import|export)\b[^;'"]*?\bfrom\s*['"]([^'"\n]+)['"]`)
	sideEffectRe = regexp.MustCompile(`(?m)\bimport\s*['"]([^'"\n]+)['"]`)
	cssImportRe  = regexp.MustCompile(`(?mi)@(?:import|use|forward)\s+(?:url\(\s*)?['"]?([^'")\s;]+)`)
)

// Name implements Strategy.
func (RegexScanner) Name() string { return "regex" }

// Discover implements Strategy.
func (RegexScanner) Discover(_ context.Context, src Source) ([]Specifier, error) {
	var specs []Specifier
	content := src.Content

	switch src.Lang {
	case LangCSS:
		for _, m := range cssImportRe.FindAllSubmatchIndex(content, -1) {
			if v := cssRef(string(content[m[2]:m[3]])); v != "" {
				specs = append(specs, Specifier{Value: v, Kind: KindCSSImport, Range: rangeAt(content, m[2], m[3])})
			}
		}
		return specs, nil
	case LangOther:
		return nil, nil
	}

	for _, m := range importFromRe.FindAllSubmatchIndex(content, -1) {
		kind := KindStaticImport
		if string(content[m[2]:m[3]]) == "export" {
			kind = KindReExport
		}
		specs = append(specs, Specifier{
			Value: string(content[m[4]:m[5]]),
			Kind:  kind,
			Range: rangeAt(content, m[4], m[5]),
		})
	}
	for _, m := range sideEffectRe.FindAllSubmatchIndex(content, -1) {
		specs = append(specs, Specifier{
			Value: string(content[m[2]:m[3]]),
			Kind:  KindStaticImport,
			Range: rangeAt(content, m[2], m[3]),
		})
	}
	return specs, nil
}
