package model

// WebVitals holds optional Core Web Vitals for a page. Nil fields were not measured.
type WebVitals struct {
	LCP  *float64 `json:"lcp,omitempty"`
	CLS  *float64 `json:"cls,omitempty"`
	INP  *float64 `json:"inp,omitempty"`
	FCP  *float64 `json:"fcp,omitempty"`
	TTFB *float64 `json:"ttfb,omitempty"`
}

// CrawledPage is one record produced by the crawler for a URL.
type CrawledPage struct {
	URL        string              `json:"url"`
	StatusCode int                 `json:"statusCode"`
	Depth      int                 `json:"depth,omitempty"`
	HTML       string              `json:"html,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	LoadTimeMs int64               `json:"loadTimeMs,omitempty"`
	Vitals     *WebVitals          `json:"cwv,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// HasError reports whether the crawler recorded a fetch error for the page.
func (p *CrawledPage) HasError() bool {
	return p.Error != ""
}
