package auditdb

import (
	"context"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/scoring"
)

// CategoryResultsFrom converts scored categories into stored rows, taking
// each weight from the catalog. Categories missing from the catalog get 0.
func CategoryResultsFrom(results []scoring.CategoryResult, categories []rules.Category) []CategoryResult {
	idx := rules.CategoryIndex(categories)
	out := make([]CategoryResult, 0, len(results))
	for _, cr := range results {
		row := CategoryResult{
			CategoryID: cr.CategoryID,
			Score:      cr.Score,
			PassCount:  cr.PassCount,
			WarnCount:  cr.WarnCount,
			FailCount:  cr.FailCount,
		}
		if c, ok := idx[cr.CategoryID]; ok {
			row.Weight = c.Weight
		}
		out = append(out, row)
	}
	return out
}

// RuleResultsFrom flattens the outcomes of every category, in order.
// Outcomes without a page URL are attributed to defaultURL.
func RuleResultsFrom(results []scoring.CategoryResult, defaultURL string) []RuleResult {
	var out []RuleResult
	for _, cr := range results {
		for _, o := range cr.Outcomes {
			page := o.PageURL
			if page == "" {
				page = defaultURL
			}
			out = append(out, RuleResult{
				CategoryID: cr.CategoryID,
				RuleID:     o.RuleID,
				PageURL:    page,
				Status:     o.Status,
				Message:    o.Message,
				Details:    o.Details,
				Weight:     o.Weight,
			})
		}
	}
	return out
}

// RecordAuditResult persists a built audit result for a running audit:
// category and rule results, completion, then issue derivation. If storing
// results fails the audit is marked failed.
func (s *Store) RecordAuditResult(ctx context.Context, auditID string, res *scoring.AuditResult, categories []rules.Category) error {
	fail := func(err error) error {
		if ferr := s.FailAudit(ctx, auditID, err.Error()); ferr != nil {
			s.logger.Error("mark audit failed", logging.F("audit_id", auditID), logging.Err(ferr))
		}
		return err
	}

	if err := s.InsertCategoryResults(ctx, auditID, CategoryResultsFrom(res.Categories, categories)); err != nil {
		return fail(err)
	}
	if _, err := s.InsertRuleResults(ctx, auditID, RuleResultsFrom(res.Categories, res.URL)); err != nil {
		return fail(err)
	}

	pass, warn, failCount := res.Counts()
	if err := s.CompleteAudit(ctx, auditID, AuditSummary{
		OverallScore: res.OverallScore,
		PagesAudited: res.CrawledPages,
		PassCount:    pass,
		WarnCount:    warn,
		FailCount:    failCount,
		CompletedAt:  res.Timestamp,
	}); err != nil {
		return err
	}
	_, err := s.GenerateIssuesFromResults(ctx, auditID)
	return err
}
