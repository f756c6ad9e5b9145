// Package extract pulls link and image references out of stored page markup.
package extract

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/sitescore/internal/storage/projectdb"
	"github.com/raysh454/sitescore/internal/urlnorm"
)

// Result holds the references found on one page.
type Result struct {
	Links  []projectdb.LinkInput
	Images []projectdb.ImageInput
}

var skippedSchemes = map[string]bool{
	"javascript": true,
	"mailto":     true,
	"tel":        true,
	"data":       true,
}

// Page parses html and returns its links and images. Relative references are
// resolved against pageURL and link targets are canonicalized with tracking
// parameters removed; a link is internal when it resolves to the same
// project domain as pageURL.
func Page(pageURL, html string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return FromDocument(base, doc), nil
}

// FromDocument extracts from an already parsed document.
func FromDocument(base *url.URL, doc *goquery.Document) *Result {
	pageDomain, _ := projectdb.ExtractDomain(base.String())
	res := &Result{
		Links:  []projectdb.LinkInput{},
		Images: []projectdb.ImageInput{},
	}

	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.AttrOr("href", ""))
		if raw == "" || strings.HasPrefix(raw, "#") {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if skippedSchemes[strings.ToLower(abs.Scheme)] {
			return
		}
		if err := urlnorm.Normalize(abs, urlnorm.Options{DropTrackingParams: true}); err != nil {
			return
		}
		rel := strings.ToLower(strings.TrimSpace(sel.AttrOr("rel", "")))
		domain, _ := projectdb.ExtractDomain(abs.String())
		res.Links = append(res.Links, projectdb.LinkInput{
			Href:       abs.String(),
			AnchorText: anchorText(sel),
			IsInternal: domain != "" && domain == pageDomain,
			IsNofollow: hasToken(rel, "nofollow"),
			Rel:        rel,
		})
	})

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		lazySrc := strings.TrimSpace(sel.AttrOr("data-src", ""))
		if src == "" {
			src = lazySrc
		}
		if src == "" {
			return
		}
		resolved := src
		if !strings.HasPrefix(src, "data:") {
			if ref, err := url.Parse(src); err == nil {
				resolved = base.ResolveReference(ref).String()
			}
		}
		alt, hasAltAttr := sel.Attr("alt")
		alt = strings.TrimSpace(alt)
		res.Images = append(res.Images, projectdb.ImageInput{
			Src:    resolved,
			Alt:    alt,
			HasAlt: hasAltAttr && alt != "",
			Width:  intAttr(sel, "width"),
			Height: intAttr(sel, "height"),
			IsLazy: strings.EqualFold(sel.AttrOr("loading", ""), "lazy") || lazySrc != "",
			Srcset: strings.TrimSpace(sel.AttrOr("srcset", "")),
			Format: ImageFormat(src),
		})
	})
	return res
}

func anchorText(sel *goquery.Selection) string {
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if text != "" {
		return text
	}
	if t := strings.TrimSpace(sel.AttrOr("aria-label", "")); t != "" {
		return t
	}
	return strings.TrimSpace(sel.Find("img[alt]").First().AttrOr("alt", ""))
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

func intAttr(sel *goquery.Selection, name string) *int {
	v := strings.TrimSuffix(strings.TrimSpace(sel.AttrOr(name, "")), "px")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// ImageFormat guesses an image format from its URL extension or data URI
// media type. Unknown formats yield "".
func ImageFormat(src string) string {
	if strings.HasPrefix(src, "data:image/") {
		mt := strings.TrimPrefix(src, "data:image/")
		if i := strings.IndexAny(mt, ";,"); i >= 0 {
			mt = mt[:i]
		}
		return normalizeFormat(mt)
	}
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	return normalizeFormat(ext)
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "jpg", "jpeg":
		return "jpeg"
	case "svg+xml", "svg":
		return "svg"
	case "png", "gif", "webp", "avif", "bmp", "ico":
		return strings.ToLower(f)
	default:
		return ""
	}
}
