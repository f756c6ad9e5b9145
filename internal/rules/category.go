package rules

import (
	"fmt"
	"strings"
)

// Category is a weighted grouping of rules. Weight is the category's
// percentage of the overall score.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// CategoryWeightError reports a catalog whose weights do not sum to 100.
type CategoryWeightError struct {
	Sum int
}

func (e *CategoryWeightError) Error() string {
	return fmt.Sprintf("category weights sum to %d, want 100", e.Sum)
}

// ValidateCategories checks ids are unique and non-empty, weights are
// non-negative and sum to 100.
func ValidateCategories(cats []Category) error {
	seen := make(map[string]struct{}, len(cats))
	sum := 0
	for _, c := range cats {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("category with empty id")
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("duplicate category id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Weight < 0 {
			return fmt.Errorf("category %s: negative weight %d", c.ID, c.Weight)
		}
		sum += c.Weight
	}
	if sum != 100 {
		return &CategoryWeightError{Sum: sum}
	}
	return nil
}

// CategoryIndex maps category id to definition.
func CategoryIndex(cats []Category) map[string]Category {
	out := make(map[string]Category, len(cats))
	for _, c := range cats {
		out[c.ID] = c
	}
	return out
}

// DefaultCategories is the stock catalog. Weights sum to 100.
func DefaultCategories() []Category {
	return []Category{
		{ID: "core", Name: "Core SEO", Description: "Titles, descriptions, canonicals and indexability", Weight: 14},
		{ID: "content", Name: "Content", Description: "Text quality, headings and duplication", Weight: 10},
		{ID: "perf", Name: "Performance", Description: "Load timing and Core Web Vitals", Weight: 10},
		{ID: "links", Name: "Links", Description: "Internal and external link health", Weight: 8},
		{ID: "security", Name: "Security", Description: "HTTPS, security headers and mixed content", Weight: 8},
		{ID: "technical", Name: "Technical", Description: "Status codes, redirects and server behaviour", Weight: 7},
		{ID: "crawl", Name: "Crawlability", Description: "Robots directives, sitemaps and depth", Weight: 6},
		{ID: "images", Name: "Images", Description: "Alt text, dimensions and formats", Weight: 5},
		{ID: "schema", Name: "Structured Data", Description: "JSON-LD and microdata validity", Weight: 5},
		{ID: "mobile", Name: "Mobile", Description: "Viewport and tap target checks", Weight: 5},
		{ID: "a11y", Name: "Accessibility", Description: "Landmarks, labels and contrast hints", Weight: 4},
		{ID: "eeat", Name: "E-E-A-T", Description: "Authorship and trust signals", Weight: 4},
		{ID: "social", Name: "Social", Description: "Open Graph and Twitter cards", Weight: 3},
		{ID: "url", Name: "URL Structure", Description: "Length, casing and parameters", Weight: 3},
		{ID: "i18n", Name: "Internationalization", Description: "hreflang and language declarations", Weight: 2},
		{ID: "legal", Name: "Legal", Description: "Privacy and cookie notices", Weight: 2},
		{ID: "js", Name: "JavaScript", Description: "Render-blocking and client-side rendering", Weight: 2},
		{ID: "local", Name: "Local SEO", Description: "NAP consistency and local business markup", Weight: 1},
		{ID: "redirect", Name: "Redirects", Description: "Chains and loops", Weight: 1},
	}
}
