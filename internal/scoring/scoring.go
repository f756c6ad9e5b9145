// Package scoring turns rule outcomes into category and overall scores.
// Everything here is pure: no I/O, no clocks, no shared state.
package scoring

import (
	"math"
	"time"

	"github.com/raysh454/sitescore/internal/rules"
)

// RuleOutcome is a rule's outcome for one page, with the rule weight
// copied at evaluation time.
type RuleOutcome struct {
	RuleID  string        `json:"ruleId"`
	PageURL string        `json:"pageUrl,omitempty"`
	Status  rules.Status  `json:"status"`
	Message string        `json:"message"`
	Details rules.Details `json:"details,omitempty"`
	Weight  int           `json:"weight"`
}

// CategoryResult aggregates one category's outcomes for one audit.
type CategoryResult struct {
	CategoryID string        `json:"categoryId"`
	Score      int           `json:"score"`
	PassCount  int           `json:"passCount"`
	WarnCount  int           `json:"warnCount"`
	FailCount  int           `json:"failCount"`
	Outcomes   []RuleOutcome `json:"outcomes"`
}

// AuditResult is the top-level aggregate of one audit run.
type AuditResult struct {
	URL          string           `json:"url"`
	OverallScore int              `json:"overallScore"`
	Categories   []CategoryResult `json:"categories"`
	Timestamp    time.Time        `json:"timestamp"`
	CrawledPages int              `json:"crawledPages"`
}

// StatusPoints maps a status to its fixed point value: pass=100, warn=50, fail=0.
func StatusPoints(s rules.Status) int {
	switch s {
	case rules.StatusPass:
		return 100
	case rules.StatusWarn:
		return 50
	default:
		return 0
	}
}

func effectiveWeight(w int) int {
	if w <= 0 {
		return 1
	}
	return w
}

// CategoryScore is the weight-averaged point value of outcomes, rounded to
// the nearest integer. Empty input scores 0.
func CategoryScore(outcomes []RuleOutcome) int {
	if len(outcomes) == 0 {
		return 0
	}
	var num, den int
	for _, o := range outcomes {
		w := effectiveWeight(o.Weight)
		num += StatusPoints(o.Status) * w
		den += w
	}
	return int(math.Round(float64(num) / float64(den)))
}

// OverallScore averages category scores by catalog weight. Categories whose
// weight is unknown or zero are left out of both sums; if nothing remains
// the score is 0.
func OverallScore(results []CategoryResult, categories []rules.Category) int {
	weights := make(map[string]int, len(categories))
	for _, c := range categories {
		weights[c.ID] = c.Weight
	}
	var num, den int
	for _, r := range results {
		w := weights[r.CategoryID]
		if w <= 0 {
			continue
		}
		num += r.Score * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den)))
}

// BuildCategoryResult tallies outcomes and attaches the category score.
func BuildCategoryResult(categoryID string, outcomes []RuleOutcome) CategoryResult {
	res := CategoryResult{
		CategoryID: categoryID,
		Score:      CategoryScore(outcomes),
		Outcomes:   append([]RuleOutcome(nil), outcomes...),
	}
	for _, o := range outcomes {
		switch o.Status {
		case rules.StatusPass:
			res.PassCount++
		case rules.StatusWarn:
			res.WarnCount++
		case rules.StatusFail:
			res.FailCount++
		}
	}
	return res
}

// BuildAuditResult assembles the top-level result. crawledPages below 1 is
// treated as a single-page audit.
func BuildAuditResult(url string, results []CategoryResult, categories []rules.Category, ts time.Time, crawledPages int) AuditResult {
	if crawledPages < 1 {
		crawledPages = 1
	}
	return AuditResult{
		URL:          url,
		OverallScore: OverallScore(results, categories),
		Categories:   append([]CategoryResult(nil), results...),
		Timestamp:    ts,
		CrawledPages: crawledPages,
	}
}

// Counts sums pass/warn/fail across all categories.
func (a AuditResult) Counts() (pass, warn, fail int) {
	for _, c := range a.Categories {
		pass += c.PassCount
		warn += c.WarnCount
		fail += c.FailCount
	}
	return pass, warn, fail
}
