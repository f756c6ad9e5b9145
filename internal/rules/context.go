package rules

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/sitescore/internal/model"
)

// PageContext is what a rule sees of one crawled page. The parsed document
// is built lazily and shared by every rule evaluated on the page.
type PageContext struct {
	URL        string
	HTML       string
	Headers    http.Header
	StatusCode int
	LoadTime   time.Duration
	Vitals     *model.WebVitals

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

// NewPageContext adapts a crawler record.
func NewPageContext(p *model.CrawledPage) *PageContext {
	h := make(http.Header, len(p.Headers))
	for k, vs := range p.Headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return &PageContext{
		URL:        p.URL,
		HTML:       p.HTML,
		Headers:    h,
		StatusCode: p.StatusCode,
		LoadTime:   time.Duration(p.LoadTimeMs) * time.Millisecond,
		Vitals:     p.Vitals,
	}
}

// Document returns the parsed markup. Parsing happens once per page.
func (pc *PageContext) Document() (*goquery.Document, error) {
	pc.once.Do(func() {
		pc.doc, pc.docErr = goquery.NewDocumentFromReader(strings.NewReader(pc.HTML))
	})
	return pc.doc, pc.docErr
}

// ParsedURL parses the page URL; nil when it does not parse.
func (pc *PageContext) ParsedURL() *url.URL {
	u, err := url.Parse(pc.URL)
	if err != nil {
		return nil
	}
	return u
}
