package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitescore/internal/extract"
)

const samplePage = `<!doctype html>
<html><body>
  <a href="/about">About   us</a>
  <a href="https://www.example.com/contact#form">Contact</a>
  <a href="https://partner.org/deal" rel="nofollow sponsored">Partner</a>
  <a href="#top">Top</a>
  <a href="mailto:hi@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="https://cdn.example.net/x"><img src="/icon.svg" alt="CDN"></a>
  <img src="/img/hero.JPG" alt="Hero" width="800" height="400">
  <img data-src="/img/lazy.webp" loading="lazy">
  <img src="data:image/png;base64,AAAA" alt="">
  <img alt="no source">
</body></html>`

func TestPage_Links(t *testing.T) {
	t.Parallel()

	res, err := extract.Page("https://example.com/blog/post", samplePage)
	require.NoError(t, err)
	require.Len(t, res.Links, 4)

	about := res.Links[0]
	assert.Equal(t, "https://example.com/about", about.Href)
	assert.Equal(t, "About us", about.AnchorText)
	assert.True(t, about.IsInternal)

	contact := res.Links[1]
	assert.Equal(t, "https://www.example.com/contact", contact.Href)
	assert.True(t, contact.IsInternal, "www. prefix is the same project")

	partner := res.Links[2]
	assert.False(t, partner.IsInternal)
	assert.True(t, partner.IsNofollow)
	assert.Equal(t, "nofollow sponsored", partner.Rel)

	cdn := res.Links[3]
	assert.False(t, cdn.IsInternal)
	assert.Equal(t, "CDN", cdn.AnchorText)
}

func TestPage_Images(t *testing.T) {
	t.Parallel()

	res, err := extract.Page("https://example.com/blog/post", samplePage)
	require.NoError(t, err)
	require.Len(t, res.Images, 4)

	icon := res.Images[0]
	assert.Equal(t, "https://example.com/icon.svg", icon.Src)
	assert.Equal(t, "svg", icon.Format)

	hero := res.Images[1]
	assert.True(t, hero.HasAlt)
	require.NotNil(t, hero.Width)
	assert.Equal(t, 800, *hero.Width)
	assert.Equal(t, "jpeg", hero.Format)
	assert.False(t, hero.IsLazy)

	lazy := res.Images[2]
	assert.Equal(t, "https://example.com/img/lazy.webp", lazy.Src)
	assert.True(t, lazy.IsLazy)
	assert.False(t, lazy.HasAlt)
	assert.Nil(t, lazy.Width)

	inline := res.Images[3]
	assert.Equal(t, "png", inline.Format)
	assert.False(t, inline.HasAlt)
}

func TestImageFormat(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/a.png":                   "png",
		"/a.jpeg?w=100":            "jpeg",
		"https://x/y.AVIF":         "avif",
		"data:image/svg+xml;utf8,": "svg",
		"/no-extension":            "",
		"/doc.pdf":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extract.ImageFormat(in), in)
	}
}

func TestPage_CanonicalizesLinkTargets(t *testing.T) {
	t.Parallel()

	html := `<a href="/pricing/?utm_source=news&b=2&a=1">Pricing</a>
<a href="HTTPS://Example.com:443/docs/../faq#q1">FAQ</a>`
	res, err := extract.Page("https://example.com/", html)
	require.NoError(t, err)
	require.Len(t, res.Links, 2)

	assert.Equal(t, "https://example.com/pricing/?a=1&b=2", res.Links[0].Href)
	assert.Equal(t, "https://example.com/faq", res.Links[1].Href)
	assert.True(t, res.Links[1].IsInternal)
}
