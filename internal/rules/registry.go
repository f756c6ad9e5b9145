package rules

import (
	"errors"
	"fmt"
)

// DuplicateRuleError is returned when a rule id is registered twice.
type DuplicateRuleError struct {
	ID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("duplicate rule id %q", e.ID)
}

// Registry is an append-only catalog of rules keyed by id. It is built once
// at startup and only read afterwards, so it carries no lock.
type Registry struct {
	byID       map[string]Rule
	order      []string
	byCategory map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[string]Rule),
		byCategory: make(map[string][]string),
	}
}

// BuildRegistry registers rules in the given order and stops at the first
// invalid or duplicate definition.
func BuildRegistry(rules []Rule) (*Registry, error) {
	r := NewRegistry()
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustBuildRegistry is BuildRegistry for process start-up, where a broken
// rule set must stop the program.
func MustBuildRegistry(rules []Rule) *Registry {
	r, err := BuildRegistry(rules)
	if err != nil {
		panic(err)
	}
	return r
}

// Register inserts rule. It fails with *DuplicateRuleError if the id exists.
func (r *Registry) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, ok := r.byID[rule.ID]; ok {
		return &DuplicateRuleError{ID: rule.ID}
	}
	r.byID[rule.ID] = rule
	r.order = append(r.order, rule.ID)
	r.byCategory[rule.Category] = append(r.byCategory[rule.Category], rule.ID)
	return nil
}

// All returns every rule in registration order.
func (r *Registry) All() []Rule {
	out := make([]Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ByCategory returns the rules of one category in registration order.
// Unknown categories yield an empty slice.
func (r *Registry) ByCategory(categoryID string) []Rule {
	ids := r.byCategory[categoryID]
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// ByID looks a rule up. ok is false for unknown ids.
func (r *Registry) ByID(id string) (Rule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// IDs returns all rule ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered rules.
func (r *Registry) Count() int {
	return len(r.order)
}

// Active returns the rules enabled by sel, in registration order.
func (r *Registry) Active(sel *Selector) []Rule {
	if sel == nil {
		return r.All()
	}
	out := make([]Rule, 0, len(r.order))
	for _, id := range r.order {
		if sel.Enabled(id) {
			out = append(out, r.byID[id])
		}
	}
	return out
}

// IsDuplicate reports whether err is a duplicate-id registration error.
func IsDuplicate(err error) bool {
	var dup *DuplicateRuleError
	return errors.As(err, &dup)
}
