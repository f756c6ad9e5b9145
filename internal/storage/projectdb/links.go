package projectdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/storage"
)

const brokenCondition = `(l.target_status_code >= 400 OR l.target_error IS NOT NULL)`

// withTx runs fn inside a transaction that is rolled back unless fn and the
// commit both succeed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
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

// InsertLinks stores every link found on one page.
func (s *Store) InsertLinks(ctx context.Context, crawlID string, pageID int64, links []LinkInput) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO links (crawl_id, page_id, href, href_hash, anchor_text, is_internal, is_nofollow, rel)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, crawlID, pageID, l.Href, storage.HashURL(l.Href),
				l.AnchorText, l.IsInternal, l.IsNofollow, l.Rel); err != nil {
				return fmt.Errorf("insert link %s: %w", l.Href, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(links), nil
}

// InsertImages stores every image found on one page.
func (s *Store) InsertImages(ctx context.Context, crawlID string, pageID int64, images []ImageInput) (int, error) {
	if len(images) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO images (crawl_id, page_id, src, src_hash, alt, has_alt, width, height, is_lazy, srcset, file_size, format)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare image insert: %w", err)
		}
		defer stmt.Close()
		for _, im := range images {
			if _, err := stmt.ExecContext(ctx, crawlID, pageID, im.Src, storage.HashURL(im.Src),
				im.Alt, im.HasAlt, storage.NullInt(im.Width), storage.NullInt(im.Height),
				im.IsLazy, im.Srcset, storage.NullInt(im.FileSize), strings.ToLower(im.Format)); err != nil {
				return fmt.Errorf("insert image %s: %w", im.Src, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// ListLinks returns the links of one page in insertion order.
func (s *Store) ListLinks(ctx context.Context, pageID int64) ([]*Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, href, href_hash, anchor_text, is_internal, is_nofollow, rel,
		       target_status_code, target_error
		FROM links WHERE page_id = ? ORDER BY id
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	out := []*Link{}
	for rows.Next() {
		var l Link
		var code sql.NullInt64
		var terr sql.NullString
		if err := rows.Scan(&l.ID, &l.PageID, &l.Href, &l.HrefHash, &l.AnchorText,
			&l.IsInternal, &l.IsNofollow, &l.Rel, &code, &terr); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.TargetStatusCode = storage.IntPtr(code)
		l.TargetError = terr.String
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpdateLinkStatus records the checked result for every link of the crawl
// pointing at href. It returns the number of rows updated.
func (s *Store) UpdateLinkStatus(ctx context.Context, crawlID, href string, statusCode *int, checkErr string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE links SET target_status_code = ?, target_error = ?, checked_at = ?
		WHERE crawl_id = ? AND href_hash = ? AND href = ?
	`, storage.NullInt(statusCode), storage.NullString(checkErr), storage.Unix(s.now()),
		crawlID, storage.HashURL(href), href)
	if err != nil {
		return 0, fmt.Errorf("update link status: %w", err)
	}
	return res.RowsAffected()
}

// GetBrokenLinks returns checked links whose target failed, joined with the
// URL of the page they were found on.
func (s *Store) GetBrokenLinks(ctx context.Context, crawlID string) ([]*BrokenLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.url, l.href, l.anchor_text, l.is_internal, l.target_status_code, l.target_error
		FROM links l
		JOIN pages p ON p.id = l.page_id
		WHERE l.crawl_id = ? AND `+brokenCondition+`
		ORDER BY p.url, l.id
	`, crawlID)
	if err != nil {
		return nil, fmt.Errorf("query broken links: %w", err)
	}
	defer rows.Close()

	out := []*BrokenLink{}
	for rows.Next() {
		var b BrokenLink
		var code sql.NullInt64
		var terr sql.NullString
		if err := rows.Scan(&b.SourceURL, &b.Href, &b.AnchorText, &b.IsInternal, &code, &terr); err != nil {
			return nil, fmt.Errorf("scan broken link: %w", err)
		}
		b.TargetStatusCode = storage.IntPtr(code)
		b.TargetError = terr.String
		out = append(out, &b)
	}
	return out, rows.Err()
}

// GetExternalLinkTargets returns each distinct external href of a crawl once,
// in first-seen order, for a de-duplicated link-checking pass.
func (s *Store) GetExternalLinkTargets(ctx context.Context, crawlID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT href FROM links
		WHERE crawl_id = ? AND is_internal = 0
		GROUP BY href
		ORDER BY MIN(id)
	`, crawlID)
	if err != nil {
		return nil, fmt.Errorf("query external links: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var href string
		if err := rows.Scan(&href); err != nil {
			return nil, fmt.Errorf("scan href: %w", err)
		}
		out = append(out, href)
	}
	return out, rows.Err()
}

// GetLinkStats aggregates the links of a crawl.
func (s *Store) GetLinkStats(ctx context.Context, crawlID string) (*LinkStats, error) {
	var st LinkStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_internal = 1), 0),
		       COALESCE(SUM(is_internal = 0), 0),
		       COALESCE(SUM(is_nofollow = 1), 0),
		       COALESCE(SUM(CASE WHEN `+brokenCondition+` THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT CASE WHEN is_internal = 0 THEN href END)
		FROM links l WHERE crawl_id = ?
	`, crawlID).Scan(&st.Total, &st.Internal, &st.External, &st.Nofollow, &st.Broken, &st.UniqueExternal)
	if err != nil {
		return nil, fmt.Errorf("query link stats: %w", err)
	}
	return &st, nil
}

// GetImageStats aggregates the images of a crawl. AltCoverage is the
// percentage of images with alt text, 100 when there are none.
func (s *Store) GetImageStats(ctx context.Context, crawlID string) (*ImageStats, error) {
	st := ImageStats{Formats: map[string]int{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(has_alt = 1), 0),
		       COALESCE(SUM(is_lazy = 1), 0)
		FROM images WHERE crawl_id = ?
	`, crawlID).Scan(&st.Total, &st.WithAlt, &st.Lazy)
	if err != nil {
		return nil, fmt.Errorf("query image stats: %w", err)
	}
	st.WithoutAlt = st.Total - st.WithAlt
	st.AltCoverage = 100
	if st.Total > 0 {
		st.AltCoverage = float64(st.WithAlt) * 100 / float64(st.Total)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT format, COUNT(*) FROM images
		WHERE crawl_id = ? AND format != ''
		GROUP BY format
	`, crawlID)
	if err != nil {
		return nil, fmt.Errorf("query image formats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f string
		var n int
		if err := rows.Scan(&f, &n); err != nil {
			return nil, fmt.Errorf("scan image format: %w", err)
		}
		st.Formats[f] = n
	}
	return &st, rows.Err()
}
