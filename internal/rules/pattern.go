package rules

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// InvalidPatternError reports an enable/disable pattern that cannot be compiled.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid rule pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// Pattern matches whole rule ids. Only '*' is special: it matches any
// sequence of characters, including none. Everything else is literal and
// case-sensitive.
type Pattern struct {
	raw    string
	g      glob.Glob
	minLen int // literal bytes every match must contain
}

// CompilePattern compiles a single enable/disable pattern.
func CompilePattern(p string) (Pattern, error) {
	if p == "" {
		return Pattern{}, &InvalidPatternError{Pattern: p, Err: fmt.Errorf("empty pattern")}
	}
	parts := strings.Split(p, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	// no separators: '*' spans the whole id, dots and hyphens included
	g, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return Pattern{}, &InvalidPatternError{Pattern: p, Err: err}
	}
	return Pattern{raw: p, g: g, minLen: len(p) - strings.Count(p, "*")}, nil
}

// Match reports whether id matches the pattern in full.
func (p Pattern) Match(id string) bool {
	return p.g != nil && len(id) >= p.minLen && p.g.Match(id)
}

func (p Pattern) String() string { return p.raw }

func compileAll(patterns []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		c, err := CompilePattern(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Selector is a precompiled enable/disable pair.
type Selector struct {
	enable  []Pattern
	disable []Pattern
}

// NewSelector compiles enable and disable lists once for repeated use.
func NewSelector(enable, disable []string) (*Selector, error) {
	en, err := compileAll(enable)
	if err != nil {
		return nil, err
	}
	dis, err := compileAll(disable)
	if err != nil {
		return nil, err
	}
	return &Selector{enable: en, disable: dis}, nil
}

// Enabled resolves a rule id: any matching disable pattern wins, an empty
// enable list allows everything else, otherwise some enable pattern must match.
func (s *Selector) Enabled(id string) bool {
	for _, p := range s.disable {
		if p.Match(id) {
			return false
		}
	}
	if len(s.enable) == 0 {
		return true
	}
	for _, p := range s.enable {
		if p.Match(id) {
			return true
		}
	}
	return false
}

// Filter keeps the enabled ids, preserving input order.
func (s *Selector) Filter(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.Enabled(id) {
			out = append(out, id)
		}
	}
	return out
}

// IsEnabled is the one-shot form of Selector.Enabled.
func IsEnabled(id string, enable, disable []string) (bool, error) {
	s, err := NewSelector(enable, disable)
	if err != nil {
		return false, err
	}
	return s.Enabled(id), nil
}

// Filter is the one-shot form of Selector.Filter.
func Filter(ids, enable, disable []string) ([]string, error) {
	s, err := NewSelector(enable, disable)
	if err != nil {
		return nil, err
	}
	return s.Filter(ids), nil
}
