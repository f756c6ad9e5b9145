package projectdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/raysh454/sitescore/internal/storage"
)

// EnqueueURLs records discovered URLs as pending. A URL already known to the
// crawl, in any state, is left untouched. It returns how many were new.
func (s *Store) EnqueueURLs(ctx context.Context, crawlID string, urls []FrontierInput) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	added := 0
	now := storage.Unix(s.now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO frontier (crawl_id, url, url_hash, depth, priority, status, discovered_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare frontier insert: %w", err)
		}
		defer stmt.Close()
		for _, u := range urls {
			res, err := stmt.ExecContext(ctx, crawlID, u.URL, storage.HashURL(u.URL), u.Depth, u.Priority, now, now)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", u.URL, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ClaimPending moves up to limit pending entries to in-progress and returns
// them, highest priority first then shallowest.
func (s *Store) ClaimPending(ctx context.Context, crawlID string, limit int) ([]*FrontierEntry, error) {
	if limit <= 0 {
		return []*FrontierEntry{}, nil
	}
	out := []*FrontierEntry{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, url, url_hash, depth, priority
			FROM frontier
			WHERE crawl_id = ? AND status = 'pending'
			ORDER BY priority DESC, depth ASC, id ASC
			LIMIT ?
		`, crawlID, limit)
		if err != nil {
			return fmt.Errorf("query pending: %w", err)
		}
		for rows.Next() {
			e := FrontierEntry{Status: FrontierInProgress}
			if err := rows.Scan(&e.ID, &e.URL, &e.URLHash, &e.Depth, &e.Priority); err != nil {
				rows.Close()
				return fmt.Errorf("scan frontier: %w", err)
			}
			out = append(out, &e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}

		placeholders := make([]string, len(out))
		args := []any{storage.Unix(s.now())}
		for i, e := range out {
			placeholders[i] = "?"
			args = append(args, e.ID)
		}
		_, err = tx.ExecContext(ctx, `UPDATE frontier SET status = 'in-progress', updated_at = ? WHERE id IN (`+
			strings.Join(placeholders, ",")+`)`, args...)
		if err != nil {
			return fmt.Errorf("claim frontier: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkFrontier sets the status of the entry for url.
func (s *Store) MarkFrontier(ctx context.Context, crawlID, url string, status FrontierStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE frontier SET status = ?, updated_at = ? WHERE crawl_id = ? AND url_hash = ?
	`, status, storage.Unix(s.now()), crawlID, storage.HashURL(url))
	if err != nil {
		return fmt.Errorf("mark frontier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrFrontierNotFound, url)
	}
	return nil
}

// ResetInProgress returns interrupted in-progress entries to pending so a
// resumed crawl picks them up again.
func (s *Store) ResetInProgress(ctx context.Context, crawlID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE frontier SET status = 'pending', updated_at = ?
		WHERE crawl_id = ? AND status = 'in-progress'
	`, storage.Unix(s.now()), crawlID)
	if err != nil {
		return 0, fmt.Errorf("reset frontier: %w", err)
	}
	return res.RowsAffected()
}

// FrontierStats counts entries per status. Every status is present.
func (s *Store) FrontierStats(ctx context.Context, crawlID string) (map[FrontierStatus]int, error) {
	stats := map[FrontierStatus]int{
		FrontierPending:    0,
		FrontierInProgress: 0,
		FrontierDone:       0,
		FrontierFailed:     0,
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM frontier WHERE crawl_id = ? GROUP BY status`, crawlID)
	if err != nil {
		return nil, fmt.Errorf("query frontier stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st FrontierStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan frontier stats: %w", err)
		}
		stats[st] = n
	}
	return stats, rows.Err()
}
