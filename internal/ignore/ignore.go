// Package ignore decides which paths below a project root are never build
// inputs. Rules use gitignore syntax and are read from .nexxoignore.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-project ignore file read by LoadFromDir.
const FileName = ".nexxoignore"

// defaultRules are excluded from every scan and watch.
var defaultRules = []string{
	".git/", ".hg/", ".svn/",
	"node_modules/", "jspm_packages/", "bower_components/",
	"coverage/", ".nyc_output/",
	".nexxo/",
	".DS_Store", "Thumbs.db",
}

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// matches reports whether rel, or anything it is nested in, matches the glob.
func (r rule) matches(rel string) bool {
	if ok, _ := doublestar.Match(r.glob, rel); ok {
		return true
	}
	if strings.HasSuffix(r.glob, "/**") {
		return false
	}
	ok, _ := doublestar.Match(r.glob+"/**", rel)
	return ok
}

// matchesParent reports whether a strict ancestor directory of rel matches.
func (r rule) matchesParent(rel string) bool {
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' && r.matches(rel[:i]) {
			return true
		}
	}
	return false
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return rule{}, false
	}
	var r rule
	if line[0] == '!' {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	switch {
	case strings.HasPrefix(line, "/"):
		line = line[1:]
	case !strings.Contains(line, "/"):
		line = "**/" + line
	}
	if line == "" {
		return rule{}, false
	}
	r.glob = line
	return r, true
}

// Matcher is an ordered rule list rooted at a project directory. The last
// matching rule decides, so a later negation re-includes a path.
type Matcher struct {
	root  string
	rules []rule
}

// NewMatcher returns a Matcher with no rules.
func NewMatcher(root string) *Matcher {
	return &Matcher{root: root}
}

// LoadFromDir returns a Matcher rooted at dir holding the default rules
// followed by dir's .nexxoignore.
func LoadFromDir(dir string) (*Matcher, error) {
	m := NewMatcher(dir)
	m.LoadDefaults()
	if err := m.LoadFile(filepath.Join(dir, FileName)); err != nil {
		return nil, err
	}
	return m, nil
}

// Root is the directory rule paths are relative to.
func (m *Matcher) Root() string { return m.root }

// AddPattern appends one rule line. Blank lines and comments are skipped.
func (m *Matcher) AddPattern(line string) {
	if r, ok := parseRule(line); ok {
		m.rules = append(m.rules, r)
	}
}

// AddPatterns appends rule lines in order.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadDefaults appends the rules for VCS metadata, package manager caches,
// coverage output and engine state.
func (m *Matcher) LoadDefaults() {
	m.AddPatterns(defaultRules)
}

// AddDirectory excludes every directory named like the last element of dir.
// Used for the build output directory.
func (m *Matcher) AddDirectory(dir string) {
	name := filepath.Base(filepath.Clean(dir))
	if name == "." || name == string(filepath.Separator) {
		return
	}
	m.AddPattern(name + "/")
}

// LoadFile appends the rules in a gitignore-style file. A missing file adds
// nothing.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPattern(sc.Text())
	}
	return sc.Err()
}

// Match reports whether the root-relative path is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	excluded := false
	for _, r := range m.rules {
		var hit bool
		if r.dirOnly && !isDir {
			hit = r.matchesParent(rel)
		} else {
			hit = r.matches(rel)
		}
		if hit {
			excluded = !r.negate
		}
	}
	return excluded
}

// WalkFunc receives each visited entry with its absolute path and its
// slash-separated path relative to the Matcher root ("." for the root).
type WalkFunc func(path, rel string, d fs.DirEntry) error

// Walk visits dir and every entry below it that the rules keep. Excluded
// directories are not descended into. Entries outside the root are never
// excluded.
func (m *Matcher) Walk(dir string, fn WalkFunc) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, inside := m.relative(path)
		if inside && rel != "." && m.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(path, rel, d)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", dir, err)
	}
	return nil
}

func (m *Matcher) relative(path string) (string, bool) {
	if m.root == "" {
		return filepath.ToSlash(path), true
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
