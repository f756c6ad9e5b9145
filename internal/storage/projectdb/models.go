package projectdb

import (
	"time"

	"github.com/raysh454/sitescore/internal/model"
)

// CrawlStatus is the lifecycle state of a crawl.
type CrawlStatus string

const (
	CrawlRunning   CrawlStatus = "running"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
	CrawlCancelled CrawlStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s CrawlStatus) Terminal() bool {
	return s == CrawlCompleted || s == CrawlFailed || s == CrawlCancelled
}

// FrontierStatus is the state of a frontier entry.
type FrontierStatus string

const (
	FrontierPending    FrontierStatus = "pending"
	FrontierInProgress FrontierStatus = "in-progress"
	FrontierDone       FrontierStatus = "done"
	FrontierFailed     FrontierStatus = "failed"
)

// Project owns every crawl of one domain.
type Project struct {
	ID        int64          `json:"id"`
	Domain    string         `json:"domain"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// CrawlStats is the stats snapshot recorded when a crawl ends.
type CrawlStats struct {
	PagesCrawled int   `json:"pagesCrawled"`
	PagesFailed  int   `json:"pagesFailed"`
	DurationMs   int64 `json:"durationMs"`
}

// Crawl is one crawl session.
type Crawl struct {
	ID           string         `json:"crawlId"`
	ProjectID    int64          `json:"projectId"`
	Status       CrawlStatus    `json:"status"`
	StartURL     string         `json:"startUrl"`
	Config       map[string]any `json:"config,omitempty"`
	Stats        CrawlStats     `json:"stats"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  time.Time      `json:"completedAt,omitempty"`
}

// CrawlInput describes a crawl to create. ID and StartedAt are generated
// when empty.
type CrawlInput struct {
	ID        string
	StartURL  string
	Config    map[string]any
	StartedAt time.Time
}

// Page is a stored page. HTML is only populated by the "with HTML" accessors.
type Page struct {
	ID             int64               `json:"id"`
	CrawlID        string              `json:"crawlId"`
	URL            string              `json:"url"`
	URLHash        string              `json:"urlHash"`
	StatusCode     int                 `json:"statusCode"`
	Depth          int                 `json:"depth"`
	HTML           string              `json:"html,omitempty"`
	HTMLCompressed bool                `json:"htmlCompressed"`
	HTMLSize       int                 `json:"htmlSize"`
	Headers        map[string][]string `json:"headers,omitempty"`
	LoadTimeMs     int64               `json:"loadTimeMs"`
	Vitals         *model.WebVitals    `json:"cwv,omitempty"`
	ErrorMessage   string              `json:"errorMessage,omitempty"`
	CrawledAt      time.Time           `json:"crawledAt"`
}

// PageFilter narrows ListPages. Zero values mean "no filter".
type PageFilter struct {
	MinStatus int
	MaxStatus int
	// HasError selects pages with (true) or without (false) an error message.
	HasError *bool
	Limit    int
	Offset   int
}

// CrawlFilter narrows ListCrawls.
type CrawlFilter struct {
	ProjectID int64
	Status    CrawlStatus
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// LinkInput is one <a>-like reference found on a page.
type LinkInput struct {
	Href       string
	AnchorText string
	IsInternal bool
	IsNofollow bool
	Rel        string
}

// Link is a stored link.
type Link struct {
	ID               int64  `json:"id"`
	PageID           int64  `json:"pageId"`
	Href             string `json:"href"`
	HrefHash         string `json:"hrefHash"`
	AnchorText       string `json:"anchorText"`
	IsInternal       bool   `json:"isInternal"`
	IsNofollow       bool   `json:"isNofollow"`
	Rel              string `json:"rel,omitempty"`
	TargetStatusCode *int   `json:"targetStatusCode,omitempty"`
	TargetError      string `json:"targetError,omitempty"`
}

// BrokenLink is a link whose checked target failed, with its source page.
type BrokenLink struct {
	SourceURL        string `json:"sourceUrl"`
	Href             string `json:"href"`
	AnchorText       string `json:"anchorText"`
	IsInternal       bool   `json:"isInternal"`
	TargetStatusCode *int   `json:"targetStatusCode,omitempty"`
	TargetError      string `json:"targetError,omitempty"`
}

// LinkStats aggregates links of a crawl.
type LinkStats struct {
	Total          int `json:"total"`
	Internal       int `json:"internal"`
	External       int `json:"external"`
	Nofollow       int `json:"nofollow"`
	Broken         int `json:"broken"`
	UniqueExternal int `json:"uniqueExternal"`
}

// ImageInput is one image reference found on a page.
type ImageInput struct {
	Src      string
	Alt      string
	HasAlt   bool
	Width    *int
	Height   *int
	IsLazy   bool
	Srcset   string
	FileSize *int
	Format   string
}

// ImageStats aggregates images of a crawl.
type ImageStats struct {
	Total       int            `json:"total"`
	WithAlt     int            `json:"withAlt"`
	WithoutAlt  int            `json:"withoutAlt"`
	Lazy        int            `json:"lazy"`
	AltCoverage float64        `json:"altCoverage"`
	Formats     map[string]int `json:"formats"`
}

// FrontierInput is a discovered URL.
type FrontierInput struct {
	URL      string
	Depth    int
	Priority int
}

// FrontierEntry is a stored frontier row.
type FrontierEntry struct {
	ID       int64          `json:"id"`
	URL      string         `json:"url"`
	URLHash  string         `json:"urlHash"`
	Depth    int            `json:"depth"`
	Priority int            `json:"priority"`
	Status   FrontierStatus `json:"status"`
}

// DiffChunk is an added or removed span between two stored versions of a page.
type DiffChunk struct {
	Type    string `json:"type"` // "added" | "removed"
	Content string `json:"content"`
}
