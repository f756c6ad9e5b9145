package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/rules"
)

// legacyTime accepts RFC 3339 strings or unix milliseconds.
type legacyTime struct {
	time.Time
}

func (t *legacyTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// legacyCrawl is one document under crawls/.
type legacyCrawl struct {
	ID          string              `json:"id"`
	StartURL    string              `json:"startUrl"`
	StartedAt   legacyTime          `json:"startedAt"`
	CompletedAt legacyTime          `json:"completedAt"`
	Config      map[string]any      `json:"config"`
	Stats       *legacyCrawlStats   `json:"stats"`
	Pages       []model.CrawledPage `json:"pages"`
}

type legacyCrawlStats struct {
	PagesCrawled int   `json:"pagesCrawled"`
	Errors       int   `json:"errors"`
	DurationMs   int64 `json:"durationMs"`
}

// legacyRuleResult is one rule outcome inside a legacy report category.
type legacyRuleResult struct {
	RuleID  string        `json:"ruleId"`
	Status  rules.Status  `json:"status"`
	Message string        `json:"message"`
	Details rules.Details `json:"details"`
	Weight  int           `json:"weight"`
	URL     string        `json:"url"`
}

type legacyCategory struct {
	CategoryID string             `json:"categoryId"`
	Name       string             `json:"name"`
	Score      int                `json:"score"`
	PassCount  int                `json:"passCount"`
	WarnCount  int                `json:"warnCount"`
	FailCount  int                `json:"failCount"`
	Results    []legacyRuleResult `json:"results"`
}

// legacyReport is one document under reports/. Category weights were never
// written to this format.
type legacyReport struct {
	URL          string           `json:"url"`
	OverallScore int              `json:"overallScore"`
	Timestamp    legacyTime       `json:"timestamp"`
	CrawledPages int              `json:"crawledPages"`
	Categories   []legacyCategory `json:"categories"`
}

func (r *legacyReport) validate() error {
	if r.URL == "" {
		return fmt.Errorf("report has no url")
	}
	seen := map[string]bool{}
	for _, c := range r.Categories {
		if c.CategoryID == "" {
			return fmt.Errorf("category with empty id")
		}
		if seen[c.CategoryID] {
			return fmt.Errorf("duplicate category %s", c.CategoryID)
		}
		seen[c.CategoryID] = true
		for _, res := range c.Results {
			if res.RuleID == "" {
				return fmt.Errorf("category %s: result with empty ruleId", c.CategoryID)
			}
			if !res.Status.Valid() {
				return fmt.Errorf("rule %s: invalid status %q", res.RuleID, res.Status)
			}
		}
	}
	return nil
}
