// Package projectdb is the per-domain embedded database: projects, crawls,
// pages (with compressed HTML), links, images and the crawl frontier.
package projectdb

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
	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrCrawlNotFound     = errors.New("crawl not found")
	ErrPageNotFound      = errors.New("page not found")
	ErrInvalidTransition = errors.New("crawl is not running")
	ErrFrontierNotFound  = errors.New("frontier entry not found")
)

// Store wraps one domain's database file.
type Store struct {
	db     *sql.DB
	path   string
	domain string
	logger logging.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and bootstraps its schema.
func Open(path, domain string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	db, err := storage.OpenSQLite(path, schemaSQL)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		path:   path,
		domain: domain,
		logger: logger.With(logging.F("component", "projectdb"), logging.F("domain", domain)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.logger.Debug("project database opened", logging.F("path", path))
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing project database")
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Domain returns the domain this store belongs to.
func (s *Store) Domain() string { return s.domain }

// DB exposes the handle for read-only tooling.
func (s *Store) DB() *sql.DB { return s.db }

func marshalConfig(cfg map[string]any) (string, error) {
	if len(cfg) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}

func unmarshalConfig(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// NewCrawlID returns a sortable id: UTC date and time plus a random suffix.
func NewCrawlID(t time.Time) string {
	return t.UTC().Format("20060102-150405") + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// ─── Projects ──────────────────────────────────────────────────────────

// GetOrCreateProject returns the project for domain, creating it on first use.
func (s *Store) GetOrCreateProject(ctx context.Context, domain string) (*Project, error) {
	now := storage.Unix(s.now())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (domain, name, config, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(domain) DO NOTHING
	`, domain, domain, now, now); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.GetProject(ctx, domain)
}

// GetProject looks a project up by domain.
func (s *Store) GetProject(ctx context.Context, domain string) (*Project, error) {
	var p Project
	var cfg string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, name, config, created_at, updated_at
		FROM projects WHERE domain = ?
	`, domain).Scan(&p.ID, &p.Domain, &p.Name, &cfg, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	p.Config = unmarshalConfig(cfg)
	p.CreatedAt = storage.FromUnix(created)
	p.UpdatedAt = storage.FromUnix(updated)
	return &p, nil
}

// UpdateProject changes name and/or config. Nil arguments are left untouched.
func (s *Store) UpdateProject(ctx context.Context, id int64, name *string, config map[string]any) error {
	sets := []string{"updated_at = ?"}
	args := []any{storage.Unix(s.now())}
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if config != nil {
		raw, err := marshalConfig(config)
		if err != nil {
			return err
		}
		sets = append(sets, "config = ?")
		args = append(args, raw)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ─── Crawls ────────────────────────────────────────────────────────────

// CreateCrawl starts a crawl in the running state. A duplicate id or an
// unknown project is returned as an error.
func (s *Store) CreateCrawl(ctx context.Context, projectID int64, in CrawlInput) (*Crawl, error) {
	started := in.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	id := in.ID
	if id == "" {
		id = NewCrawlID(started)
	}
	cfg, err := marshalConfig(in.Config)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO crawls (id, project_id, status, start_url, config, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, projectID, CrawlRunning, in.StartURL, cfg, storage.Unix(started)); err != nil {
		return nil, fmt.Errorf("insert crawl: %w", err)
	}

	s.logger.Info("crawl created", logging.F("crawl_id", id), logging.F("start_url", in.StartURL))
	return &Crawl{
		ID:        id,
		ProjectID: projectID,
		Status:    CrawlRunning,
		StartURL:  in.StartURL,
		Config:    in.Config,
		StartedAt: storage.FromUnix(storage.Unix(started)),
	}, nil
}

// CompleteCrawl marks a running crawl completed with its final stats.
func (s *Store) CompleteCrawl(ctx context.Context, crawlID string, stats CrawlStats) error {
	return s.finishCrawl(ctx, crawlID, CrawlCompleted, stats, "")
}

// FailCrawl marks a running crawl failed.
func (s *Store) FailCrawl(ctx context.Context, crawlID, message string, stats CrawlStats) error {
	return s.finishCrawl(ctx, crawlID, CrawlFailed, stats, message)
}

// CancelCrawl marks a running crawl cancelled. Rows already written stay.
func (s *Store) CancelCrawl(ctx context.Context, crawlID string, stats CrawlStats) error {
	return s.finishCrawl(ctx, crawlID, CrawlCancelled, stats, "")
}

func (s *Store) finishCrawl(ctx context.Context, crawlID string, to CrawlStatus, stats CrawlStats, message string) error {
	now := storage.Unix(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawls
		SET status = ?, pages_crawled = ?, pages_failed = ?,
		    duration_ms = COALESCE(NULLIF(?, 0), ? - started_at),
		    error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'running'
	`, to, stats.PagesCrawled, stats.PagesFailed, stats.DurationMs, now, storage.NullString(message), now, crawlID)
	if err != nil {
		return fmt.Errorf("update crawl status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetCrawl(ctx, crawlID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, crawlID, to)
	}
	s.logger.Info("crawl finished", logging.F("crawl_id", crawlID), logging.F("status", string(to)), logging.F("pages", stats.PagesCrawled))
	return nil
}

const crawlColumns = `id, project_id, status, start_url, config, pages_crawled, pages_failed,
	duration_ms, error_message, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCrawl(row rowScanner) (*Crawl, error) {
	var c Crawl
	var cfg string
	var msg sql.NullString
	var started int64
	var completed sql.NullInt64
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Status, &c.StartURL, &cfg,
		&c.Stats.PagesCrawled, &c.Stats.PagesFailed, &c.Stats.DurationMs,
		&msg, &started, &completed); err != nil {
		return nil, err
	}
	c.Config = unmarshalConfig(cfg)
	c.ErrorMessage = msg.String
	c.StartedAt = storage.FromUnix(started)
	if completed.Valid {
		c.CompletedAt = storage.FromUnix(completed.Int64)
	}
	return &c, nil
}

// GetCrawl returns one crawl or ErrCrawlNotFound.
func (s *Store) GetCrawl(ctx context.Context, crawlID string) (*Crawl, error) {
	c, err := scanCrawl(s.db.QueryRowContext(ctx, `SELECT `+crawlColumns+` FROM crawls WHERE id = ?`, crawlID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCrawlNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query crawl: %w", err)
	}
	return c, nil
}

// GetLatestCrawl returns the most recently started crawl of a project.
func (s *Store) GetLatestCrawl(ctx context.Context, projectID int64) (*Crawl, error) {
	c, err := scanCrawl(s.db.QueryRowContext(ctx, `
		SELECT `+crawlColumns+` FROM crawls
		WHERE project_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCrawlNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest crawl: %w", err)
	}
	return c, nil
}

// ListCrawls returns crawls newest first.
func (s *Store) ListCrawls(ctx context.Context, f CrawlFilter) ([]*Crawl, error) {
	var where []string
	var args []any
	if f.ProjectID != 0 {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, storage.Unix(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "started_at < ?")
		args = append(args, storage.Unix(f.Until))
	}
	q := `SELECT ` + crawlColumns + ` FROM crawls`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, rowid DESC`
	q, args = paginate(q, args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query crawls: %w", err)
	}
	defer rows.Close()

	out := []*Crawl{}
	for rows.Next() {
		c, err := scanCrawl(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCrawl removes a crawl and, by cascade, its pages, links, images and
// frontier entries.
func (s *Store) DeleteCrawl(ctx context.Context, crawlID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawls WHERE id = ?`, crawlID)
	if err != nil {
		return fmt.Errorf("delete crawl: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCrawlNotFound
	}
	s.logger.Info("crawl deleted", logging.F("crawl_id", crawlID))
	return nil
}

// paginate appends LIMIT/OFFSET. A non-positive limit means unlimited.
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
