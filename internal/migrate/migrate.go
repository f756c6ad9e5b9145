// Package migrate converts the legacy flat-file layout (one JSON document
// per crawl under crawls/, one per report under reports/) into the project
// and audit databases, with backup and rollback of the source directories.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raysh454/sitescore/internal/extract"
	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/storage"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

const (
	CrawlsDir    = "crawls"
	ReportsDir   = "reports"
	BackupSuffix = ".backup"

	kindCrawl  = "crawl"
	kindReport = "report"
)

// errAlreadyMigrated marks a file whose target rows already exist.
var errAlreadyMigrated = errors.New("already migrated")

// Options controls a migration run.
type Options struct {
	// DryRun only detects pending files.
	DryRun bool
}

// Detection lists the legacy files waiting to be migrated.
type Detection struct {
	CrawlFiles  []string `json:"crawlFiles"`
	ReportFiles []string `json:"reportFiles"`
}

// NeedsMigration reports whether any legacy file is pending.
func (d *Detection) NeedsMigration() bool {
	return len(d.CrawlFiles)+len(d.ReportFiles) > 0
}

// Pending is the total number of pending files.
func (d *Detection) Pending() int {
	return len(d.CrawlFiles) + len(d.ReportFiles)
}

// Counts tallies per-file outcomes of a batch.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Report is the outcome of Run.
type Report struct {
	DryRun    bool       `json:"dryRun"`
	Detection *Detection `json:"detection"`
	Crawls    Counts     `json:"crawls"`
	Reports   Counts     `json:"reports"`
	Errors    []string   `json:"errors"`
	BackedUp  []string   `json:"backedUp"`
}

// Migrator moves legacy files under dataDir into the databases.
type Migrator struct {
	dataDir  string
	projects *projectdb.Manager
	audits   *auditdb.Store
	logger   logging.Logger
}

// New returns a Migrator for the legacy layout under dataDir.
func New(dataDir string, projects *projectdb.Manager, audits *auditdb.Store, logger logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Migrator{
		dataDir:  dataDir,
		projects: projects,
		audits:   audits,
		logger:   logger.With(logging.F("component", "migrate")),
	}
}

// Detect scans the legacy directories. It never writes anything.
func (m *Migrator) Detect() (*Detection, error) {
	crawls, err := listJSON(filepath.Join(m.dataDir, CrawlsDir))
	if err != nil {
		return nil, err
	}
	reports, err := listJSON(filepath.Join(m.dataDir, ReportsDir))
	if err != nil {
		return nil, err
	}
	return &Detection{CrawlFiles: crawls, ReportFiles: reports}, nil
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Run migrates every pending file. A file that fails is recorded in
// Report.Errors and does not stop the batch. A directory is backed up only
// when none of its files failed.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Report, error) {
	det, err := m.Detect()
	if err != nil {
		return nil, err
	}
	rep := &Report{DryRun: opts.DryRun, Detection: det, Errors: []string{}, BackedUp: []string{}}
	if opts.DryRun {
		m.logger.Info("migration dry run",
			logging.F("crawl_files", len(det.CrawlFiles)),
			logging.F("report_files", len(det.ReportFiles)))
		return rep, nil
	}

	m.runBatch(ctx, kindCrawl, det.CrawlFiles, m.MigrateCrawlFile, &rep.Crawls, rep)
	m.runBatch(ctx, kindReport, det.ReportFiles, m.MigrateReportFile, &rep.Reports, rep)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	for _, d := range []struct {
		name   string
		files  int
		counts Counts
	}{
		{CrawlsDir, len(det.CrawlFiles), rep.Crawls},
		{ReportsDir, len(det.ReportFiles), rep.Reports},
	} {
		if d.files == 0 || d.counts.Failed > 0 {
			continue
		}
		backup, err := Backup(filepath.Join(m.dataDir, d.name))
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rep.BackedUp = append(rep.BackedUp, backup)
	}

	m.logger.Info("migration finished",
		logging.F("crawls_ok", rep.Crawls.Succeeded),
		logging.F("reports_ok", rep.Reports.Succeeded),
		logging.F("skipped", rep.Crawls.Skipped+rep.Reports.Skipped),
		logging.F("failed", rep.Crawls.Failed+rep.Reports.Failed))
	return rep, nil
}

func (m *Migrator) runBatch(ctx context.Context, kind string, files []string, fn func(context.Context, string) error, counts *Counts, rep *Report) {
	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		err := fn(ctx, f)
		switch {
		case err == nil:
			counts.Succeeded++
			metrics.MigratedFiles.WithLabelValues(kind, "succeeded").Inc()
		case errors.Is(err, errAlreadyMigrated):
			counts.Skipped++
			metrics.MigratedFiles.WithLabelValues(kind, "skipped").Inc()
		default:
			counts.Failed++
			metrics.MigratedFiles.WithLabelValues(kind, "failed").Inc()
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s %s: %v", kind, filepath.Base(f), err))
			m.logger.Warn("legacy file failed", logging.F("file", f), logging.Err(err))
		}
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	return nil
}

func baseID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// MigrateCrawlFile converts one legacy crawl document. The crawl is created,
// filled and completed; if any step fails the partial crawl is deleted.
func (m *Migrator) MigrateCrawlFile(ctx context.Context, path string) error {
	var lc legacyCrawl
	if err := readJSON(path, &lc); err != nil {
		return err
	}
	startURL := lc.StartURL
	if startURL == "" && len(lc.Pages) > 0 {
		startURL = lc.Pages[0].URL
	}
	if startURL == "" {
		return fmt.Errorf("crawl has no start url and no pages")
	}
	if lc.ID == "" {
		lc.ID = baseID(path)
	}

	domain, err := projectdb.ExtractDomain(startURL)
	if err != nil {
		return err
	}
	store, project, err := m.projects.Project(ctx, domain)
	if err != nil {
		return err
	}
	if _, err := store.GetCrawl(ctx, lc.ID); err == nil {
		return errAlreadyMigrated
	} else if !errors.Is(err, projectdb.ErrCrawlNotFound) {
		return err
	}

	pages := dedupePages(lc.Pages)
	stats := projectdb.CrawlStats{PagesCrawled: len(pages)}
	for _, p := range pages {
		if p.HasError() {
			stats.PagesFailed++
		}
	}
	if lc.Stats != nil {
		stats = projectdb.CrawlStats{
			PagesCrawled: lc.Stats.PagesCrawled,
			PagesFailed:  lc.Stats.Errors,
			DurationMs:   lc.Stats.DurationMs,
		}
	}
	if stats.DurationMs == 0 && !lc.StartedAt.IsZero() && lc.CompletedAt.After(lc.StartedAt.Time) {
		stats.DurationMs = lc.CompletedAt.Sub(lc.StartedAt.Time).Milliseconds()
	}

	crawl, err := store.CreateCrawl(ctx, project.ID, projectdb.CrawlInput{
		ID:        lc.ID,
		StartURL:  startURL,
		Config:    lc.Config,
		StartedAt: lc.StartedAt.Time,
	})
	if err != nil {
		return err
	}
	if err := m.fillCrawl(ctx, store, crawl.ID, pages, stats); err != nil {
		if derr := store.DeleteCrawl(ctx, crawl.ID); derr != nil {
			m.logger.Error("remove partial crawl", logging.F("crawl_id", crawl.ID), logging.Err(derr))
		}
		return err
	}
	m.logger.Debug("crawl migrated", logging.F("crawl_id", crawl.ID), logging.F("pages", len(pages)))
	return nil
}

func (m *Migrator) fillCrawl(ctx context.Context, store *projectdb.Store, crawlID string, pages []*model.CrawledPage, stats projectdb.CrawlStats) error {
	stored, err := extract.StorePages(ctx, store, crawlID, pages)
	if err != nil {
		return err
	}
	m.logger.Debug("crawl references stored", logging.F("crawl_id", crawlID),
		logging.F("links", stored.Links), logging.F("images", stored.Images))
	return store.CompleteCrawl(ctx, crawlID, stats)
}

// dedupePages keeps the first record of each URL.
func dedupePages(in []model.CrawledPage) []*model.CrawledPage {
	seen := make(map[string]bool, len(in))
	out := make([]*model.CrawledPage, 0, len(in))
	for i := range in {
		h := storage.HashURL(in[i].URL)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, &in[i])
	}
	return out
}

// MigrateReportFile converts one legacy report into a completed audit and
// derives its issues. Category weights are synthesized as 100/categoryCount
// and flagged as such. If any step fails the partial audit is deleted.
func (m *Migrator) MigrateReportFile(ctx context.Context, path string) error {
	var lr legacyReport
	if err := readJSON(path, &lr); err != nil {
		return err
	}
	if err := lr.validate(); err != nil {
		return err
	}
	auditID := "legacy-" + baseID(path)
	if _, err := m.audits.GetAudit(ctx, auditID); err == nil {
		return errAlreadyMigrated
	} else if !errors.Is(err, auditdb.ErrAuditNotFound) {
		return err
	}

	domain, err := projectdb.ExtractDomain(lr.URL)
	if err != nil {
		return err
	}
	ts := lr.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	audit, err := m.audits.CreateAudit(ctx, auditdb.AuditInput{
		ID:          auditID,
		Domain:      domain,
		ProjectName: domain,
		StartURL:    lr.URL,
		Config:      map[string]any{"source": "legacy-report", "file": filepath.Base(path)},
		StartedAt:   ts,
	})
	if err != nil {
		return err
	}
	if err := m.fillAudit(ctx, audit.ID, &lr, ts); err != nil {
		if derr := m.audits.DeleteAudit(ctx, audit.ID); derr != nil {
			m.logger.Error("remove partial audit", logging.F("audit_id", audit.ID), logging.Err(derr))
		}
		return err
	}
	m.logger.Debug("report migrated", logging.F("audit_id", audit.ID), logging.F("score", lr.OverallScore))
	return nil
}

func (m *Migrator) fillAudit(ctx context.Context, auditID string, lr *legacyReport, ts time.Time) error {
	weight := 0
	if n := len(lr.Categories); n > 0 {
		weight = 100 / n
	}

	var cats []auditdb.CategoryResult
	var results []auditdb.RuleResult
	var sum auditdb.AuditSummary
	for _, c := range lr.Categories {
		row := auditdb.CategoryResult{
			CategoryID:        c.CategoryID,
			Score:             c.Score,
			Weight:            weight,
			WeightSynthesized: true,
			PassCount:         c.PassCount,
			WarnCount:         c.WarnCount,
			FailCount:         c.FailCount,
		}
		if row.PassCount+row.WarnCount+row.FailCount == 0 {
			for _, r := range c.Results {
				switch r.Status {
				case rules.StatusPass:
					row.PassCount++
				case rules.StatusWarn:
					row.WarnCount++
				case rules.StatusFail:
					row.FailCount++
				}
			}
		}
		cats = append(cats, row)
		sum.PassCount += row.PassCount
		sum.WarnCount += row.WarnCount
		sum.FailCount += row.FailCount

		for _, r := range c.Results {
			page := r.URL
			if page == "" {
				page = lr.URL
			}
			w := r.Weight
			if w <= 0 {
				w = 1
			}
			results = append(results, auditdb.RuleResult{
				CategoryID: c.CategoryID,
				RuleID:     r.RuleID,
				PageURL:    page,
				Status:     r.Status,
				Message:    r.Message,
				Details:    r.Details,
				Weight:     w,
			})
		}
	}

	if err := m.audits.InsertCategoryResults(ctx, auditID, cats); err != nil {
		return err
	}
	if _, err := m.audits.InsertRuleResults(ctx, auditID, results); err != nil {
		return err
	}
	sum.OverallScore = lr.OverallScore
	sum.PagesAudited = lr.CrawledPages
	if sum.PagesAudited < 1 {
		sum.PagesAudited = 1
	}
	sum.CompletedAt = ts
	if err := m.audits.CompleteAudit(ctx, auditID, sum); err != nil {
		return err
	}
	_, err := m.audits.GenerateIssuesFromResults(ctx, auditID)
	return err
}
