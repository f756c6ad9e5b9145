package server

import (
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuditDetail is an audit with its category breakdown.
type AuditDetail struct {
	*auditdb.Audit
	Categories []auditdb.CategoryResult `json:"categories"`
	Issues     auditdb.IssueCounts      `json:"issueCounts"`
}

// ProjectCrawls lists the crawls of one project.
type ProjectCrawls struct {
	Project *projectdb.Project `json:"project"`
	Crawls  []*projectdb.Crawl `json:"crawls"`
}
