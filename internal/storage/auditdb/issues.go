package auditdb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/storage"
)

// SeverityBase is the priority multiplier of a severity.
func SeverityBase(s Severity) int {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityWarning:
		return 50
	case SeverityInfo:
		return 10
	default:
		return 0
	}
}

// PriorityScore grows with the number of affected pages, logarithmically:
// round(base(severity) * log10(affected + 1)).
func PriorityScore(s Severity, affectedPages int) int {
	if affectedPages < 0 {
		affectedPages = 0
	}
	return int(math.Round(float64(SeverityBase(s)) * math.Log10(float64(affectedPages)+1)))
}

type issueKey struct {
	ruleID     string
	categoryID string
	message    string
}

type issueGroup struct {
	key   issueKey
	pages []string
	seen  map[string]struct{}
}

// groupResults groups results by rule, category and message in first-seen
// order, collecting distinct page URLs in first-seen order.
func groupResults(results []ruleResultRow) []*issueGroup {
	var groups []*issueGroup
	index := map[issueKey]*issueGroup{}
	for _, r := range results {
		k := issueKey{ruleID: r.RuleID, categoryID: r.CategoryID, message: r.Message}
		g, ok := index[k]
		if !ok {
			g = &issueGroup{key: k, seen: map[string]struct{}{}}
			index[k] = g
			groups = append(groups, g)
		}
		if _, dup := g.seen[r.PageURL]; dup {
			continue
		}
		g.seen[r.PageURL] = struct{}{}
		g.pages = append(g.pages, r.PageURL)
	}
	return groups
}

// GenerateIssuesFromResults replaces the issues of an audit with ones derived
// from its stored fail (critical) and warn (warning) rule results. Running it
// again over the same results yields the same issues. It returns how many
// issues were written.
func (s *Store) GenerateIssuesFromResults(ctx context.Context, auditID string) (int, error) {
	if _, err := s.GetAudit(ctx, auditID); err != nil {
		return 0, err
	}
	created := storage.Unix(s.now())
	written := map[Severity]int{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE audit_id = ?`, auditID); err != nil {
			return fmt.Errorf("clear issues: %w", err)
		}
		for _, pass := range []struct {
			status   string
			severity Severity
		}{
			{"fail", SeverityCritical},
			{"warn", SeverityWarning},
		} {
			var rows []ruleResultRow
			if err := tx.SelectContext(ctx, &rows, `
				SELECT * FROM rule_results WHERE audit_id = ? AND status = ? ORDER BY id
			`, auditID, pass.status); err != nil {
				return fmt.Errorf("query %s results: %w", pass.status, err)
			}
			for _, g := range groupResults(rows) {
				pages, err := json.Marshal(g.pages)
				if err != nil {
					return fmt.Errorf("marshal affected pages: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO issues
						(audit_id, rule_id, category_id, severity, message, affected_pages, affected_count, priority_score, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, auditID, g.key.ruleID, g.key.categoryID, string(pass.severity), g.key.message,
					string(pages), len(g.pages), PriorityScore(pass.severity, len(g.pages)), created); err != nil {
					return fmt.Errorf("insert issue %s: %w", g.key.ruleID, err)
				}
				written[pass.severity]++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for sev, n := range written {
		metrics.IssuesGenerated.WithLabelValues(string(sev)).Add(float64(n))
		total += n
	}
	s.logger.Info("issues generated", logging.F("audit_id", auditID), logging.F("count", total))
	return total, nil
}

type issueRow struct {
	ID            int64  `db:"id"`
	AuditID       string `db:"audit_id"`
	RuleID        string `db:"rule_id"`
	CategoryID    string `db:"category_id"`
	Severity      string `db:"severity"`
	Message       string `db:"message"`
	AffectedPages string `db:"affected_pages"`
	AffectedCount int    `db:"affected_count"`
	PriorityScore int    `db:"priority_score"`
	CreatedAt     int64  `db:"created_at"`
}

func (r issueRow) toIssue() (Issue, error) {
	is := Issue{
		ID:            r.ID,
		AuditID:       r.AuditID,
		RuleID:        r.RuleID,
		CategoryID:    r.CategoryID,
		Severity:      Severity(r.Severity),
		Message:       r.Message,
		AffectedCount: r.AffectedCount,
		PriorityScore: r.PriorityScore,
		CreatedAt:     storage.FromUnix(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.AffectedPages), &is.AffectedPages); err != nil {
		return Issue{}, fmt.Errorf("decode affected pages of issue %d: %w", r.ID, err)
	}
	return is, nil
}

// GetIssues returns the issues of an audit matching f, highest priority
// first, then most affected pages.
func (s *Store) GetIssues(ctx context.Context, auditID string, f IssueFilter) ([]Issue, error) {
	q := `SELECT * FROM issues WHERE audit_id = ?`
	args := []any{auditID}
	if f.Severity != "" {
		q += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	if f.CategoryID != "" {
		q += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.RuleID != "" {
		q += ` AND rule_id = ?`
		args = append(args, f.RuleID)
	}
	if f.MinPriority > 0 {
		q += ` AND priority_score >= ?`
		args = append(args, f.MinPriority)
	}
	q += ` ORDER BY priority_score DESC, affected_count DESC, id ASC`
	q, args = paginate(q, args, f.Limit, f.Offset)

	var rows []issueRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	out := make([]Issue, 0, len(rows))
	for _, r := range rows {
		is, err := r.toIssue()
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, nil
}

// GetCriticalIssues returns only critical issues.
func (s *Store) GetCriticalIssues(ctx context.Context, auditID string) ([]Issue, error) {
	return s.GetIssues(ctx, auditID, IssueFilter{Severity: SeverityCritical})
}

// GetTopIssues returns the n highest-priority issues.
func (s *Store) GetTopIssues(ctx context.Context, auditID string, n int) ([]Issue, error) {
	if n <= 0 {
		return []Issue{}, nil
	}
	return s.GetIssues(ctx, auditID, IssueFilter{Limit: n})
}

// GetIssueCounts buckets the issues of an audit by severity.
func (s *Store) GetIssueCounts(ctx context.Context, auditID string) (IssueCounts, error) {
	var c IssueCounts
	err := s.db.GetContext(ctx, &c, `
		SELECT COALESCE(SUM(severity = 'critical'), 0) AS critical,
		       COALESCE(SUM(severity = 'warning'), 0)  AS warning,
		       COALESCE(SUM(severity = 'info'), 0)     AS info,
		       COUNT(*)                                AS total
		FROM issues WHERE audit_id = ?
	`, auditID)
	if err != nil {
		return IssueCounts{}, fmt.Errorf("query issue counts: %w", err)
	}
	return c, nil
}
