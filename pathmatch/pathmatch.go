// Package pathmatch provides named sets of path glob rules.
package pathmatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Rule names a set of slash-separated, root-relative glob patterns.
type Rule struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}

// RulesConfig is the YAML layout of a rules file.
type RulesConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Matcher matches file paths to rules.
type Matcher struct {
	rules []Rule
}

// NewMatcher creates a matcher from a list of rules.
func NewMatcher(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// LoadRules loads rules from a YAML file.
func LoadRules(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

// LoadRulesOrEmpty loads rules from file, or returns an empty matcher if the
// file doesn't exist.
func LoadRulesOrEmpty(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{rules: []Rule{}}, nil
		}
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Matcher, error) {
	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for _, r := range config.Rules {
		for _, p := range r.Paths {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("rule %q: invalid pattern %q", r.Name, p)
			}
		}
	}
	return &Matcher{rules: config.Rules}, nil
}

// Match reports whether path matches any pattern of the named rule.
func (m *Matcher) Match(name, path string) bool {
	r := m.Rule(name)
	if r == nil {
		return false
	}
	return matchAny(r.Paths, path)
}

// MatchPath returns the names of rules that match the given path.
func (m *Matcher) MatchPath(path string) []string {
	var matched []string
	for _, r := range m.rules {
		if matchAny(r.Paths, path) {
			matched = append(matched, r.Name)
		}
	}
	return matched
}

func matchAny(patterns []string, path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Rules returns all rules.
func (m *Matcher) Rules() []Rule {
	return m.rules
}

// Rule returns a rule by name.
func (m *Matcher) Rule(name string) *Rule {
	for i := range m.rules {
		if m.rules[i].Name == name {
			return &m.rules[i]
		}
	}
	return nil
}

// SetRule adds or replaces a rule.
func (m *Matcher) SetRule(name string, paths []string) {
	for i := range m.rules {
		if m.rules[i].Name == name {
			m.rules[i].Paths = paths
			return
		}
	}
	m.rules = append(m.rules, Rule{Name: name, Paths: paths})
}

// Merge returns a matcher where each rule of other replaces the rule of the
// same name in m.
func (m *Matcher) Merge(other *Matcher) *Matcher {
	out := NewMatcher(append([]Rule(nil), m.rules...))
	if other == nil {
		return out
	}
	for _, r := range other.rules {
		out.SetRule(r.Name, r.Paths)
	}
	return out
}

// SaveRules writes rules to a YAML file.
func (m *Matcher) SaveRules(path string) error {
	data, err := yaml.Marshal(&RulesConfig{Rules: m.rules})
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}
	return nil
}
