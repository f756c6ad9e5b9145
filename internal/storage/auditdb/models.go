package auditdb

import (
	"time"

	"github.com/raysh454/sitescore/internal/rules"
)

// AuditStatus is the lifecycle state of an audit.
type AuditStatus string

const (
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
	AuditCancelled AuditStatus = "cancelled"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Audit is one stored audit run.
type Audit struct {
	ID           string         `json:"auditId"`
	Domain       string         `json:"domain"`
	ProjectName  string         `json:"projectName,omitempty"`
	CrawlID      string         `json:"crawlId,omitempty"`
	StartURL     string         `json:"startUrl"`
	Config       map[string]any `json:"config,omitempty"`
	Status       AuditStatus    `json:"status"`
	OverallScore int            `json:"overallScore"`
	PagesAudited int            `json:"pagesAudited"`
	PassCount    int            `json:"passCount"`
	WarnCount    int            `json:"warnCount"`
	FailCount    int            `json:"failCount"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  time.Time      `json:"completedAt,omitempty"`
}

// AuditInput describes an audit to create. ID and StartedAt are generated
// when empty.
type AuditInput struct {
	ID          string
	Domain      string
	ProjectName string
	CrawlID     string
	StartURL    string
	Config      map[string]any
	StartedAt   time.Time
}

// AuditSummary is the completion snapshot of an audit.
type AuditSummary struct {
	OverallScore int
	PagesAudited int
	PassCount    int
	WarnCount    int
	FailCount    int
	CompletedAt  time.Time
}

// AuditFilter narrows ListAudits.
type AuditFilter struct {
	Domain string
	Status AuditStatus
	Limit  int
	Offset int
}

// CategoryResult is a stored category aggregate.
type CategoryResult struct {
	ID                int64  `db:"id" json:"id"`
	AuditID           string `db:"audit_id" json:"auditId"`
	CategoryID        string `db:"category_id" json:"categoryId"`
	Score             int    `db:"score" json:"score"`
	Weight            int    `db:"weight" json:"weight"`
	WeightSynthesized bool   `db:"weight_synthesized" json:"weightSynthesized"`
	PassCount         int    `db:"pass_count" json:"passCount"`
	WarnCount         int    `db:"warn_count" json:"warnCount"`
	FailCount         int    `db:"fail_count" json:"failCount"`
}

// RuleResult is a stored rule outcome for one page.
type RuleResult struct {
	ID         int64         `json:"id"`
	AuditID    string        `json:"auditId"`
	CategoryID string        `json:"categoryId"`
	RuleID     string        `json:"ruleId"`
	PageURL    string        `json:"pageUrl"`
	Status     rules.Status  `json:"status"`
	Message    string        `json:"message"`
	Details    rules.Details `json:"details,omitempty"`
	Weight     int           `json:"weight"`
}

// RuleResultFilter narrows GetRuleResults.
type RuleResultFilter struct {
	CategoryID string
	Status     rules.Status
}

// Issue groups failing or warning rule results sharing rule, category and
// message.
type Issue struct {
	ID            int64     `json:"id"`
	AuditID       string    `json:"auditId"`
	RuleID        string    `json:"ruleId"`
	CategoryID    string    `json:"categoryId"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	AffectedPages []string  `json:"affectedPages"`
	AffectedCount int       `json:"affectedCount"`
	PriorityScore int       `json:"priorityScore"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IssueFilter narrows GetIssues. Zero values mean "no filter"; a
// non-positive Limit means unlimited.
type IssueFilter struct {
	Severity    Severity
	CategoryID  string
	RuleID      string
	MinPriority int
	Limit       int
	Offset      int
}

// IssueCounts buckets the issues of an audit by severity.
type IssueCounts struct {
	Critical int `db:"critical" json:"critical"`
	Warning  int `db:"warning" json:"warning"`
	Info     int `db:"info" json:"info"`
	Total    int `db:"total" json:"total"`
}
