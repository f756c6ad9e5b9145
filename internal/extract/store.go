package extract

import (
	"context"
	"fmt"

	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// Stored counts what StorePages wrote.
type Stored struct {
	Pages  int
	Links  int
	Images int
}

// StorePages inserts pages into a crawl, then extracts and stores the links
// and images of every page that carries HTML.
func StorePages(ctx context.Context, store *projectdb.Store, crawlID string, pages []*model.CrawledPage) (Stored, error) {
	ids, err := store.InsertPages(ctx, crawlID, pages)
	if err != nil {
		return Stored{}, err
	}
	out := Stored{Pages: len(ids)}
	for i, p := range pages {
		if p.HTML == "" {
			continue
		}
		res, err := Page(p.URL, p.HTML)
		if err != nil {
			return out, fmt.Errorf("extract %s: %w", p.URL, err)
		}
		n, err := store.InsertLinks(ctx, crawlID, ids[i], res.Links)
		if err != nil {
			return out, err
		}
		out.Links += n
		if n, err = store.InsertImages(ctx, crawlID, ids[i], res.Images); err != nil {
			return out, err
		}
		out.Images += n
	}
	return out, nil
}
