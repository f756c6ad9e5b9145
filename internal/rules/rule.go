// Package rules holds the rule contract, the in-memory rule registry,
// the category catalog and the enable/disable pattern matcher.
package rules

import (
	"fmt"
	"regexp"
)

// Status is the outcome of one rule for one page.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Valid reports whether s is one of pass, warn or fail.
func (s Status) Valid() bool {
	return s == StatusPass || s == StatusWarn || s == StatusFail
}

// Well-known Details keys. Rules should stick to these so stored details stay
// comparable across rules of a category.
const (
	DetailCount    = "count"    // number of offending elements
	DetailExpected = "expected" // expected value or bound
	DetailActual   = "actual"   // observed value
	DetailElements = "elements" // []string of selectors or snippets
	DetailURL      = "url"      // related URL (canonical target, redirect, ...)
	DetailMetric   = "metric"   // metric name for performance rules
)

// Details is a structured key/value payload attached to an outcome.
type Details map[string]any

// Outcome is what a rule returns for one page.
type Outcome struct {
	Status  Status  `json:"status"`
	Message string  `json:"message"`
	Details Details `json:"details,omitempty"`
}

// Pass, Warn and Fail build outcomes.
func Pass(msg string) Outcome { return Outcome{Status: StatusPass, Message: msg} }
func Warn(msg string, d Details) Outcome {
	return Outcome{Status: StatusWarn, Message: msg, Details: d}
}
func Fail(msg string, d Details) Outcome {
	return Outcome{Status: StatusFail, Message: msg, Details: d}
}

// RunFunc evaluates a rule against a page.
type RunFunc func(pc *PageContext) Outcome

// Rule is an immutable rule definition.
type Rule struct {
	// ID is globally unique kebab-case, namespaced by category ("core-canonical-loop").
	ID       string
	Category string
	// Weight is the rule's influence within its category.
	Weight int
	Run    RunFunc
}

var ruleIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks the static shape of a rule definition.
func (r Rule) Validate() error {
	if !ruleIDPattern.MatchString(r.ID) {
		return fmt.Errorf("rule id %q is not kebab-case", r.ID)
	}
	if r.Category == "" {
		return fmt.Errorf("rule %s: empty category", r.ID)
	}
	if r.Weight <= 0 {
		return fmt.Errorf("rule %s: weight must be positive, got %d", r.ID, r.Weight)
	}
	if r.Run == nil {
		return fmt.Errorf("rule %s: nil run function", r.ID)
	}
	return nil
}
