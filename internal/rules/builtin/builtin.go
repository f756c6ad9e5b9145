// Package builtin is the explicit list of rules shipped with sitescore.
// Callers hand All() to rules.BuildRegistry; nothing registers itself.
package builtin

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/sitescore/internal/rules"
)

const (
	titleMinLen = 10
	titleMaxLen = 60
	descMinLen  = 50
	descMaxLen  = 160
	ttfbWarnMs  = 800
	ttfbFailMs  = 1800
	lcpWarnMs   = 2500
	lcpFailMs   = 4000
)

// All returns every builtin rule in a stable order.
func All() []rules.Rule {
	return []rules.Rule{
		TitlePresent(),
		MetaDescription(),
		CanonicalPresent(),
		SingleH1(),
		ImageAltText(),
		HTTPSOnly(),
		HSTSHeader(),
		StatusOK(),
		TTFB(),
		LCP(),
		ViewportMeta(),
	}
}

func withDoc(run func(pc *rules.PageContext, doc *goquery.Document) rules.Outcome) rules.RunFunc {
	return func(pc *rules.PageContext) rules.Outcome {
		doc, err := pc.Document()
		if err != nil {
			return rules.Fail("page markup could not be parsed", rules.Details{rules.DetailActual: err.Error()})
		}
		return run(pc, doc)
	}
}

func TitlePresent() rules.Rule {
	return rules.Rule{
		ID: "core-title-present", Category: "core", Weight: 10,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			title := strings.TrimSpace(doc.Find("head title").First().Text())
			n := utf8.RuneCountInString(title)
			switch {
			case n == 0:
				return rules.Fail("page has no <title>", nil)
			case n < titleMinLen || n > titleMaxLen:
				return rules.Warn(fmt.Sprintf("title length should be %d-%d characters", titleMinLen, titleMaxLen),
					rules.Details{rules.DetailActual: n, rules.DetailExpected: fmt.Sprintf("%d-%d", titleMinLen, titleMaxLen)})
			}
			return rules.Pass("title present")
		}),
	}
}

func MetaDescription() rules.Rule {
	return rules.Rule{
		ID: "core-meta-description", Category: "core", Weight: 8,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
			desc = strings.TrimSpace(desc)
			n := utf8.RuneCountInString(desc)
			switch {
			case !ok || n == 0:
				return rules.Fail("meta description missing", nil)
			case n < descMinLen || n > descMaxLen:
				return rules.Warn(fmt.Sprintf("meta description should be %d-%d characters", descMinLen, descMaxLen),
					rules.Details{rules.DetailActual: n, rules.DetailExpected: fmt.Sprintf("%d-%d", descMinLen, descMaxLen)})
			}
			return rules.Pass("meta description present")
		}),
	}
}

func CanonicalPresent() rules.Rule {
	return rules.Rule{
		ID: "core-canonical-present", Category: "core", Weight: 6,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			links := doc.Find(`link[rel="canonical"]`)
			switch links.Length() {
			case 0:
				return rules.Warn("no canonical link", nil)
			case 1:
				href, _ := links.Attr("href")
				return rules.Outcome{Status: rules.StatusPass, Message: "canonical present", Details: rules.Details{rules.DetailURL: href}}
			default:
				return rules.Fail("multiple canonical links", rules.Details{rules.DetailCount: links.Length()})
			}
		}),
	}
}

func SingleH1() rules.Rule {
	return rules.Rule{
		ID: "content-single-h1", Category: "content", Weight: 5,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			switch n := doc.Find("h1").Length(); {
			case n == 0:
				return rules.Fail("page has no <h1>", nil)
			case n > 1:
				return rules.Warn("page has more than one <h1>", rules.Details{rules.DetailCount: n})
			}
			return rules.Pass("single h1")
		}),
	}
}

func ImageAltText() rules.Rule {
	return rules.Rule{
		ID: "images-alt-text", Category: "images", Weight: 6,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			var missing []string
			imgs := doc.Find("img")
			imgs.Each(func(_ int, s *goquery.Selection) {
				if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
					src, _ := s.Attr("src")
					missing = append(missing, src)
				}
			})
			switch {
			case len(missing) == 0:
				return rules.Pass("all images have alt text")
			case len(missing) == imgs.Length():
				return rules.Fail("no image has alt text", rules.Details{rules.DetailCount: len(missing), rules.DetailElements: missing})
			}
			return rules.Warn("some images lack alt text", rules.Details{rules.DetailCount: len(missing), rules.DetailElements: missing})
		}),
	}
}

func HTTPSOnly() rules.Rule {
	return rules.Rule{
		ID: "security-https", Category: "security", Weight: 10,
		Run: func(pc *rules.PageContext) rules.Outcome {
			u := pc.ParsedURL()
			if u == nil || !strings.EqualFold(u.Scheme, "https") {
				return rules.Fail("page is not served over HTTPS", rules.Details{rules.DetailURL: pc.URL})
			}
			return rules.Pass("served over HTTPS")
		},
	}
}

func HSTSHeader() rules.Rule {
	return rules.Rule{
		ID: "security-hsts", Category: "security", Weight: 4,
		Run: func(pc *rules.PageContext) rules.Outcome {
			if pc.Headers.Get("Strict-Transport-Security") == "" {
				return rules.Warn("Strict-Transport-Security header missing", nil)
			}
			return rules.Pass("HSTS header present")
		},
	}
}

func StatusOK() rules.Rule {
	return rules.Rule{
		ID: "technical-status-code", Category: "technical", Weight: 10,
		Run: func(pc *rules.PageContext) rules.Outcome {
			switch c := pc.StatusCode; {
			case c >= 200 && c < 300:
				return rules.Pass("2xx response")
			case c >= 300 && c < 400:
				return rules.Warn("page redirects", rules.Details{rules.DetailActual: c})
			default:
				return rules.Fail(fmt.Sprintf("page returned %d", c), rules.Details{rules.DetailActual: c})
			}
		},
	}
}

func TTFB() rules.Rule {
	return rules.Rule{
		ID: "perf-ttfb", Category: "perf", Weight: 5,
		Run: func(pc *rules.PageContext) rules.Outcome {
			ms := float64(pc.LoadTime.Milliseconds())
			if pc.Vitals != nil && pc.Vitals.TTFB != nil {
				ms = *pc.Vitals.TTFB
			}
			d := rules.Details{rules.DetailMetric: "ttfb", rules.DetailActual: ms}
			switch {
			case ms >= ttfbFailMs:
				return rules.Fail("time to first byte is slow", d)
			case ms >= ttfbWarnMs:
				return rules.Warn("time to first byte needs improvement", d)
			}
			return rules.Outcome{Status: rules.StatusPass, Message: "time to first byte is fast", Details: d}
		},
	}
}

func LCP() rules.Rule {
	return rules.Rule{
		ID: "perf-lcp", Category: "perf", Weight: 8,
		Run: func(pc *rules.PageContext) rules.Outcome {
			if pc.Vitals == nil || pc.Vitals.LCP == nil {
				return rules.Warn("largest contentful paint not measured", rules.Details{rules.DetailMetric: "lcp"})
			}
			d := rules.Details{rules.DetailMetric: "lcp", rules.DetailActual: *pc.Vitals.LCP}
			switch lcp := *pc.Vitals.LCP; {
			case lcp > lcpFailMs:
				return rules.Fail("largest contentful paint is poor", d)
			case lcp > lcpWarnMs:
				return rules.Warn("largest contentful paint needs improvement", d)
			}
			return rules.Outcome{Status: rules.StatusPass, Message: "largest contentful paint is good", Details: d}
		},
	}
}

func ViewportMeta() rules.Rule {
	return rules.Rule{
		ID: "mobile-viewport", Category: "mobile", Weight: 6,
		Run: withDoc(func(_ *rules.PageContext, doc *goquery.Document) rules.Outcome {
			if doc.Find(`meta[name="viewport"]`).Length() == 0 {
				return rules.Fail("viewport meta tag missing", nil)
			}
			return rules.Pass("viewport meta tag present")
		}),
	}
}
