package projectdb

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffPageHTML compares the stored HTML of url between two crawls of the same
// project. Equal spans and whitespace-only changes are omitted.
func (s *Store) DiffPageHTML(ctx context.Context, baseCrawlID, headCrawlID, url string) ([]DiffChunk, error) {
	base, err := s.GetPageByURL(ctx, baseCrawlID, url, true)
	if err != nil {
		return nil, err
	}
	head, err := s.GetPageByURL(ctx, headCrawlID, url, true)
	if err != nil {
		return nil, err
	}
	return diffHTML(base.HTML, head.HTML), nil
}

func diffHTML(base, head string) []DiffChunk {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(base, head, true))

	chunks := make([]DiffChunk, 0)
	for _, d := range diffs {
		var kind string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = "added"
		case diffmatchpatch.DiffDelete:
			kind = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		chunks = append(chunks, DiffChunk{Type: kind, Content: d.Text})
	}
	return chunks
}
