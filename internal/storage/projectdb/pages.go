package projectdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/storage"
)

const insertPageSQL = `
	INSERT INTO pages (
		crawl_id, url, url_hash, status_code, depth,
		html, html_compressed, html_size, headers, load_time_ms,
		lcp, cls, inp, fcp, ttfb, error_message, crawled_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertPage stores one crawled page and returns its row id. The HTML is
// compressed per storage.CompressHTML.
func (s *Store) InsertPage(ctx context.Context, crawlID string, p *model.CrawledPage) (int64, error) {
	id, err := s.insertPage(ctx, s.db, crawlID, p)
	if err != nil {
		return 0, err
	}
	metrics.PagesStored.Inc()
	return id, nil
}

// InsertPages stores a batch of pages in one transaction. Either every page
// is stored or none is.
func (s *Store) InsertPages(ctx context.Context, crawlID string, pages []*model.CrawledPage) ([]int64, error) {
	if len(pages) == 0 {
		return []int64{}, nil
	}
	ids := make([]int64, 0, len(pages))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pages {
			id, err := s.insertPage(ctx, tx, crawlID, p)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.PagesStored.Add(float64(len(ids)))
	s.logger.Debug("pages stored", logging.F("crawl_id", crawlID), logging.F("count", len(ids)))
	return ids, nil
}

func (s *Store) insertPage(ctx context.Context, ex execer, crawlID string, p *model.CrawledPage) (int64, error) {
	if p == nil {
		return 0, errors.New("nil page")
	}
	var blob any
	compressed := false
	size := len(p.HTML)
	if p.HTML != "" {
		c, err := storage.CompressHTML(p.HTML)
		if err != nil {
			return 0, fmt.Errorf("compress %s: %w", p.URL, err)
		}
		blob = c.Data
		compressed = c.Compressed
		size = c.OriginalSize
	}
	headers := "{}"
	if len(p.Headers) > 0 {
		b, err := json.Marshal(p.Headers)
		if err != nil {
			return 0, fmt.Errorf("marshal headers: %w", err)
		}
		headers = string(b)
	}
	var v model.WebVitals
	if p.Vitals != nil {
		v = *p.Vitals
	}

	res, err := ex.ExecContext(ctx, insertPageSQL,
		crawlID, p.URL, storage.HashURL(p.URL), p.StatusCode, p.Depth,
		blob, compressed, size, headers, p.LoadTimeMs,
		storage.NullFloat(v.LCP), storage.NullFloat(v.CLS), storage.NullFloat(v.INP),
		storage.NullFloat(v.FCP), storage.NullFloat(v.TTFB),
		storage.NullString(p.Error), storage.Unix(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert page %s: %w", p.URL, err)
	}
	return res.LastInsertId()
}

const pageMetaColumns = `id, crawl_id, url, url_hash, status_code, depth, html_compressed, html_size,
	headers, load_time_ms, lcp, cls, inp, fcp, ttfb, error_message, crawled_at`

func scanPage(row rowScanner, withHTML bool) (*Page, error) {
	var p Page
	var headers string
	var lcp, cls, inp, fcp, ttfb sql.NullFloat64
	var msg sql.NullString
	var crawled int64
	var blob []byte
	dest := []any{&p.ID, &p.CrawlID, &p.URL, &p.URLHash, &p.StatusCode, &p.Depth,
		&p.HTMLCompressed, &p.HTMLSize, &headers, &p.LoadTimeMs,
		&lcp, &cls, &inp, &fcp, &ttfb, &msg, &crawled}
	if withHTML {
		dest = append(dest, &blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if headers != "" && headers != "{}" {
		if err := json.Unmarshal([]byte(headers), &p.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", p.URL, err)
		}
	}
	if lcp.Valid || cls.Valid || inp.Valid || fcp.Valid || ttfb.Valid {
		p.Vitals = &model.WebVitals{
			LCP:  storage.FloatPtr(lcp),
			CLS:  storage.FloatPtr(cls),
			INP:  storage.FloatPtr(inp),
			FCP:  storage.FloatPtr(fcp),
			TTFB: storage.FloatPtr(ttfb),
		}
	}
	p.ErrorMessage = msg.String
	p.CrawledAt = storage.FromUnix(crawled)
	if withHTML && blob != nil {
		html, err := storage.DecompressHTML(blob, p.HTMLCompressed)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", p.URL, err)
		}
		p.HTML = html
	}
	return &p, nil
}

// GetPage returns page metadata without touching the HTML blob.
func (s *Store) GetPage(ctx context.Context, pageID int64) (*Page, error) {
	return s.getPage(ctx, false, `id = ?`, pageID)
}

// GetPageWithHTML returns the page with its decompressed HTML.
func (s *Store) GetPageWithHTML(ctx context.Context, pageID int64) (*Page, error) {
	return s.getPage(ctx, true, `id = ?`, pageID)
}

// GetPageByURL looks a page up inside a crawl by its URL hash.
func (s *Store) GetPageByURL(ctx context.Context, crawlID, url string, withHTML bool) (*Page, error) {
	return s.getPage(ctx, withHTML, `crawl_id = ? AND url_hash = ?`, crawlID, storage.HashURL(url))
}

func (s *Store) getPage(ctx context.Context, withHTML bool, where string, args ...any) (*Page, error) {
	cols := pageMetaColumns
	if withHTML {
		cols += `, html`
	}
	p, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM pages WHERE `+where, args...), withHTML)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	return p, nil
}

func pageWhere(crawlID string, f PageFilter) (string, []any) {
	where := []string{"crawl_id = ?"}
	args := []any{crawlID}
	if f.MinStatus > 0 {
		where = append(where, "status_code >= ?")
		args = append(args, f.MinStatus)
	}
	if f.MaxStatus > 0 {
		where = append(where, "status_code <= ?")
		args = append(args, f.MaxStatus)
	}
	if f.HasError != nil {
		if *f.HasError {
			where = append(where, "error_message IS NOT NULL")
		} else {
			where = append(where, "error_message IS NULL")
		}
	}
	return strings.Join(where, " AND "), args
}

// ListPages returns page metadata of a crawl in insertion order.
func (s *Store) ListPages(ctx context.Context, crawlID string, f PageFilter) ([]*Page, error) {
	where, args := pageWhere(crawlID, f)
	q, args := paginate(`SELECT `+pageMetaColumns+` FROM pages WHERE `+where+` ORDER BY id`, args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	out := []*Page{}
	for rows.Next() {
		p, err := scanPage(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPagesWithHTML is ListPages with decompressed HTML attached. Used by the
// auditor, which needs markup for every page.
func (s *Store) ListPagesWithHTML(ctx context.Context, crawlID string, f PageFilter) ([]*Page, error) {
	where, args := pageWhere(crawlID, f)
	q, args := paginate(`SELECT `+pageMetaColumns+`, html FROM pages WHERE `+where+` ORDER BY id`, args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	out := []*Page{}
	for rows.Next() {
		p, err := scanPage(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPages counts pages matching the filter, ignoring pagination.
func (s *Store) CountPages(ctx context.Context, crawlID string, f PageFilter) (int, error) {
	where, args := pageWhere(crawlID, f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// ToCrawledPage converts a stored page back to the crawler record shape.
func (p *Page) ToCrawledPage() *model.CrawledPage {
	return &model.CrawledPage{
		URL:        p.URL,
		StatusCode: p.StatusCode,
		Depth:      p.Depth,
		HTML:       p.HTML,
		Headers:    p.Headers,
		LoadTimeMs: p.LoadTimeMs,
		Vitals:     p.Vitals,
		Error:      p.ErrorMessage,
	}
}
