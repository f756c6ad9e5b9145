// Package auditdb is the shared audit history database: audit runs, their
// category and rule results, and the issues derived from them.
package auditdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrAuditNotFound     = errors.New("audit not found")
	ErrInvalidTransition = errors.New("audit is not running")
)

// Store wraps the audits database.
type Store struct {
	db     *sqlx.DB
	path   string
	logger logging.Logger
	now    func() time.Time
}

// Open opens or creates the audits database at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	db, err := storage.OpenSQLite(path, schemaSQL)
	if err != nil {
		return nil, err
	}
	return &Store{
		// the name only selects sqlx's "?" bind style
		db:     sqlx.NewDb(db, "sqlite3"),
		path:   path,
		logger: logger.With(logging.F("component", "auditdb")),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// NewAuditID returns a sortable audit id.
func NewAuditID(t time.Time) string {
	return "audit-" + t.UTC().Format("20060102-150405") + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", logging.Err(rbErr))
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ─── Audit lifecycle ───────────────────────────────────────────────────

// CreateAudit starts an audit in the running state.
func (s *Store) CreateAudit(ctx context.Context, in AuditInput) (*Audit, error) {
	started := in.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	id := in.ID
	if id == "" {
		id = NewAuditID(started)
	}
	cfg := "{}"
	if len(in.Config) > 0 {
		b, err := json.Marshal(in.Config)
		if err != nil {
			return nil, fmt.Errorf("marshal config: %w", err)
		}
		cfg = string(b)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audits (id, domain, project_name, crawl_id, start_url, config, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, 'running', ?)
	`, id, in.Domain, in.ProjectName, in.CrawlID, in.StartURL, cfg, storage.Unix(started)); err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	s.logger.Info("audit created", logging.F("audit_id", id), logging.F("domain", in.Domain))
	return s.GetAudit(ctx, id)
}

// CompleteAudit records the final score and counts of a running audit.
func (s *Store) CompleteAudit(ctx context.Context, auditID string, sum AuditSummary) error {
	done := sum.CompletedAt
	if done.IsZero() {
		done = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE audits
		SET status = 'completed', overall_score = ?, pages_audited = ?,
		    pass_count = ?, warn_count = ?, fail_count = ?, completed_at = ?
		WHERE id = ? AND status = 'running'
	`, sum.OverallScore, sum.PagesAudited, sum.PassCount, sum.WarnCount, sum.FailCount, storage.Unix(done), auditID)
	if err != nil {
		return fmt.Errorf("complete audit: %w", err)
	}
	if err := s.checkTransition(ctx, res, auditID); err != nil {
		return err
	}
	metrics.AuditsFinished.WithLabelValues(string(AuditCompleted)).Inc()
	s.logger.Info("audit completed", logging.F("audit_id", auditID), logging.F("score", sum.OverallScore))
	return nil
}

// FailAudit marks a running audit failed.
func (s *Store) FailAudit(ctx context.Context, auditID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audits SET status = 'failed', error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'running'
	`, message, storage.Unix(s.now()), auditID)
	if err != nil {
		return fmt.Errorf("fail audit: %w", err)
	}
	if err := s.checkTransition(ctx, res, auditID); err != nil {
		return err
	}
	metrics.AuditsFinished.WithLabelValues(string(AuditFailed)).Inc()
	s.logger.Warn("audit failed", logging.F("audit_id", auditID), logging.F("reason", message))
	return nil
}

// CancelAudit marks a running audit cancelled. Like the other terminal
// transitions it fails with ErrInvalidTransition once the audit has finished.
func (s *Store) CancelAudit(ctx context.Context, auditID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audits SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status = 'running'
	`, storage.Unix(s.now()), auditID)
	if err != nil {
		return fmt.Errorf("cancel audit: %w", err)
	}
	if err := s.checkTransition(ctx, res, auditID); err != nil {
		return err
	}
	metrics.AuditsFinished.WithLabelValues(string(AuditCancelled)).Inc()
	s.logger.Info("audit cancelled", logging.F("audit_id", auditID))
	return nil
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, auditID string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetAudit(ctx, auditID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, auditID)
}

type auditRow struct {
	ID           string `db:"id"`
	Domain       string `db:"domain"`
	ProjectName  string `db:"project_name"`
	CrawlID      string `db:"crawl_id"`
	StartURL     string `db:"start_url"`
	Config       string `db:"config"`
	Status       string `db:"status"`
	OverallScore int    `db:"overall_score"`
	PagesAudited int    `db:"pages_audited"`
	PassCount    int    `db:"pass_count"`
	WarnCount    int    `db:"warn_count"`
	FailCount    int    `db:"fail_count"`
	ErrorMessage string `db:"error_message"`
	StartedAt    int64  `db:"started_at"`
	CompletedAt  int64  `db:"completed_at"`
}

func (r auditRow) toAudit() (*Audit, error) {
	a := &Audit{
		ID:           r.ID,
		Domain:       r.Domain,
		ProjectName:  r.ProjectName,
		CrawlID:      r.CrawlID,
		StartURL:     r.StartURL,
		Status:       AuditStatus(r.Status),
		OverallScore: r.OverallScore,
		PagesAudited: r.PagesAudited,
		PassCount:    r.PassCount,
		WarnCount:    r.WarnCount,
		FailCount:    r.FailCount,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    storage.FromUnix(r.StartedAt),
		CompletedAt:  storage.FromUnix(r.CompletedAt),
	}
	if r.Config != "" && r.Config != "{}" {
		if err := json.Unmarshal([]byte(r.Config), &a.Config); err != nil {
			return nil, fmt.Errorf("decode config of audit %s: %w", r.ID, err)
		}
	}
	return a, nil
}

// GetAudit returns one audit or ErrAuditNotFound.
func (s *Store) GetAudit(ctx context.Context, auditID string) (*Audit, error) {
	var row auditRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM audits WHERE id = ?`, auditID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuditNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return row.toAudit()
}

// ListAudits returns audits newest first.
func (s *Store) ListAudits(ctx context.Context, f AuditFilter) ([]*Audit, error) {
	var where []string
	var args []any
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT * FROM audits`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, rowid DESC`
	q, args = paginate(q, args, f.Limit, f.Offset)

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	out := make([]*Audit, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAudit()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteAudit removes an audit with its results and issues.
func (s *Store) DeleteAudit(ctx context.Context, auditID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audits WHERE id = ?`, auditID)
	if err != nil {
		return fmt.Errorf("delete audit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAuditNotFound
	}
	return nil
}

// ─── Results ───────────────────────────────────────────────────────────

// InsertCategoryResults stores category aggregates in one transaction.
func (s *Store) InsertCategoryResults(ctx context.Context, auditID string, results []CategoryResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range results {
			r.AuditID = auditID
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO category_results
					(audit_id, category_id, score, weight, weight_synthesized, pass_count, warn_count, fail_count)
				VALUES
					(:audit_id, :category_id, :score, :weight, :weight_synthesized, :pass_count, :warn_count, :fail_count)
			`, r); err != nil {
				return fmt.Errorf("insert category result %s: %w", r.CategoryID, err)
			}
		}
		return nil
	})
}

// InsertRuleResults stores rule outcomes in one transaction, in the given
// order.
func (s *Store) InsertRuleResults(ctx context.Context, auditID string, results []RuleResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO rule_results (audit_id, category_id, rule_id, page_url, status, message, details, weight)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare rule result insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range results {
			details := "{}"
			if len(r.Details) > 0 {
				b, err := json.Marshal(r.Details)
				if err != nil {
					return fmt.Errorf("marshal details of %s: %w", r.RuleID, err)
				}
				details = string(b)
			}
			if _, err := stmt.ExecContext(ctx, auditID, r.CategoryID, r.RuleID, r.PageURL,
				string(r.Status), r.Message, details, r.Weight); err != nil {
				return fmt.Errorf("insert rule result %s@%s: %w", r.RuleID, r.PageURL, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// GetCategoryResults returns the category aggregates of an audit in
// insertion order.
func (s *Store) GetCategoryResults(ctx context.Context, auditID string) ([]CategoryResult, error) {
	out := []CategoryResult{}
	if err := s.db.SelectContext(ctx, &out, `
		SELECT id, audit_id, category_id, score, weight, weight_synthesized, pass_count, warn_count, fail_count
		FROM category_results WHERE audit_id = ? ORDER BY id
	`, auditID); err != nil {
		return nil, fmt.Errorf("query category results: %w", err)
	}
	return out, nil
}

type ruleResultRow struct {
	ID         int64  `db:"id"`
	AuditID    string `db:"audit_id"`
	CategoryID string `db:"category_id"`
	RuleID     string `db:"rule_id"`
	PageURL    string `db:"page_url"`
	Status     string `db:"status"`
	Message    string `db:"message"`
	Details    string `db:"details"`
	Weight     int    `db:"weight"`
}

// GetRuleResults returns the rule outcomes of an audit in insertion order.
func (s *Store) GetRuleResults(ctx context.Context, auditID string, f RuleResultFilter) ([]RuleResult, error) {
	q := `SELECT * FROM rule_results WHERE audit_id = ?`
	args := []any{auditID}
	if f.CategoryID != "" {
		q += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY id`

	var rows []ruleResultRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query rule results: %w", err)
	}
	out := make([]RuleResult, 0, len(rows))
	for _, r := range rows {
		rr := RuleResult{
			ID:         r.ID,
			AuditID:    r.AuditID,
			CategoryID: r.CategoryID,
			RuleID:     r.RuleID,
			PageURL:    r.PageURL,
			Status:     rules.Status(r.Status),
			Message:    r.Message,
			Weight:     r.Weight,
		}
		if r.Details != "" && r.Details != "{}" {
			if err := json.Unmarshal([]byte(r.Details), &rr.Details); err != nil {
				return nil, fmt.Errorf("decode details of %s: %w", r.RuleID, err)
			}
		}
		out = append(out, rr)
	}
	return out, nil
}

func paginate(q string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return q, args
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return q + ` LIMIT ? OFFSET ?`, append(args, limit, offset)
}
