// Package linkcache remembers the outcome of external link checks across
// crawls. Entries expire by age, judged at read time.
package linkcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// DefaultTTL is used when Open is given a non-positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

var ErrEntryNotFound = errors.New("link cache entry not found")

// Entry is the last known result of checking a URL.
type Entry struct {
	URL        string    `json:"url"`
	StatusCode *int      `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
	// IsValid is computed on read: now - CheckedAt < ttl.
	IsValid bool `json:"isValid"`
}

// Result is one check outcome to store.
type Result struct {
	URL        string
	StatusCode *int
	Error      string
}

// Stats describes the cache contents at the time of the call.
type Stats struct {
	Total   int `db:"total" json:"total"`
	Valid   int `db:"valid" json:"valid"`
	Expired int `db:"expired" json:"expired"`
	Errors  int `db:"errors" json:"errors"`
}

// Cache is the link cache database.
type Cache struct {
	db     *sqlx.DB
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open opens or creates the cache database at path.
func Open(path string, ttl time.Duration, logger logging.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := storage.OpenSQLite(path, schemaSQL)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		db:     sqlx.NewDb(db, "sqlite3"),
		ttl:    ttl,
		logger: logger.With(logging.F("component", "linkcache")),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// TTL returns the validity window.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) cutoff() int64 {
	return storage.Unix(c.now().Add(-c.ttl))
}

// Get returns the entry for url. Expired entries are returned with IsValid
// false, not hidden.
func (c *Cache) Get(ctx context.Context, url string) (*Entry, error) {
	var code sql.NullInt64
	var msg sql.NullString
	var checked int64
	err := c.db.QueryRowContext(ctx, `SELECT status_code, error, checked_at FROM link_cache WHERE url = ?`, url).
		Scan(&code, &msg, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.LinkCacheLookups.WithLabelValues("miss").Inc()
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query link cache: %w", err)
	}
	e := &Entry{
		URL:        url,
		StatusCode: storage.IntPtr(code),
		Error:      msg.String,
		CheckedAt:  storage.FromUnix(checked),
		IsValid:    checked > c.cutoff(),
	}
	if e.IsValid {
		metrics.LinkCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.LinkCacheLookups.WithLabelValues("expired").Inc()
	}
	return e, nil
}

// Set records a check result; the latest write for a URL wins.
func (c *Cache) Set(ctx context.Context, r Result) error {
	return c.set(ctx, c.db, r, storage.Unix(c.now()))
}

func (c *Cache) set(ctx context.Context, ex sqlx.ExecerContext, r Result, at int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO link_cache (url, status_code, error, checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			status_code = excluded.status_code,
			error = excluded.error,
			checked_at = excluded.checked_at
	`, r.URL, storage.NullInt(r.StatusCode), storage.NullString(r.Error), at)
	if err != nil {
		return fmt.Errorf("upsert link cache %s: %w", r.URL, err)
	}
	return nil
}

// SetMany records several results in one transaction.
func (c *Cache) SetMany(ctx context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("rollback failed", logging.Err(rbErr))
		}
	}()
	at := storage.Unix(c.now())
	for _, r := range results {
		if err := c.set(ctx, tx, r, at); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link cache: %w", err)
	}
	return nil
}

// Cleanup deletes expired entries and returns how many were removed.
func (c *Cache) Cleanup(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM link_cache WHERE checked_at <= ?`, c.cutoff())
	if err != nil {
		return 0, fmt.Errorf("cleanup link cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	c.logger.Info("link cache cleaned", logging.F("removed", n))
	return n, nil
}

// Stats counts entries by validity.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	cutoff := c.cutoff()
	err := c.db.GetContext(ctx, &st, `
		SELECT COUNT(*)                                      AS total,
		       COALESCE(SUM(checked_at > ?), 0)              AS valid,
		       COALESCE(SUM(checked_at <= ?), 0)             AS expired,
		       COALESCE(SUM(error IS NOT NULL), 0)           AS errors
		FROM link_cache
	`, cutoff, cutoff)
	if err != nil {
		return Stats{}, fmt.Errorf("query link cache stats: %w", err)
	}
	return st, nil
}
