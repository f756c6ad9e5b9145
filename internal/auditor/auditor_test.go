package auditor_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/raysh454/sitescore/internal/auditor"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
	"github.com/raysh454/sitescore/internal/testutil"
)

var testCategories = []rules.Category{
	{ID: "core", Name: "Core", Weight: 60},
	{ID: "perf", Name: "Performance", Weight: 40},
}

func newTestAuditor(t *testing.T, cfg auditor.Config, rs ...rules.Rule) *auditor.Auditor {
	t.Helper()
	reg, err := rules.BuildRegistry(rs)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	a, err := auditor.New(reg, testCategories, cfg, testutil.NewDummyLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func testPages() []*model.CrawledPage {
	return []*model.CrawledPage{
		{URL: "https://e.com/", StatusCode: 200, HTML: "<html></html>"},
		{URL: "https://e.com/bad", StatusCode: 200, HTML: "<html></html>"},
		{URL: "https://e.com/down", Error: "timeout"},
	}
}

// ─── Audit ─────────────────────────────────────────────────────────────

func TestAudit_AggregatesPerCategory(t *testing.T) {
	t.Parallel()
	a := newTestAuditor(t, auditor.Config{Concurrency: 2},
		testutil.PathRule("core-path", "core", 1, "/bad", "bad path"),
		testutil.StaticRule("perf-slow", "perf", 1, rules.StatusWarn, "slow"),
	)

	res, err := a.Audit(context.Background(), "https://e.com/", testPages())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if res.CrawledPages != 3 {
		t.Errorf("CrawledPages = %d, want 3", res.CrawledPages)
	}
	if len(res.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(res.Categories))
	}
	core, perf := res.Categories[0], res.Categories[1]
	if core.CategoryID != "core" || core.Score != 50 || core.PassCount != 1 || core.FailCount != 1 {
		t.Errorf("core = %+v", core)
	}
	if perf.CategoryID != "perf" || perf.Score != 50 || perf.WarnCount != 2 {
		t.Errorf("perf = %+v", perf)
	}
	if res.OverallScore != 50 {
		t.Errorf("OverallScore = %d, want 50", res.OverallScore)
	}
	for _, o := range core.Outcomes {
		if o.PageURL == "https://e.com/down" {
			t.Error("errored page must not be evaluated")
		}
	}
}

func TestAudit_DisabledRulesDoNotRun(t *testing.T) {
	t.Parallel()
	a := newTestAuditor(t, auditor.Config{Disable: []string{"perf-*"}},
		testutil.StaticRule("core-ok", "core", 1, rules.StatusPass, "ok"),
		testutil.StaticRule("perf-slow", "perf", 1, rules.StatusFail, "slow"),
	)

	if got := len(a.ActiveRules()); got != 1 {
		t.Fatalf("active rules = %d, want 1", got)
	}
	res, err := a.Audit(context.Background(), "https://e.com/", testPages())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(res.Categories) != 1 || res.Categories[0].CategoryID != "core" {
		t.Fatalf("categories = %+v", res.Categories)
	}
	if res.OverallScore != 100 {
		t.Errorf("OverallScore = %d, want 100", res.OverallScore)
	}
}

func TestAudit_PreservesPageAndRuleOrder(t *testing.T) {
	t.Parallel()
	a := newTestAuditor(t, auditor.Config{Concurrency: 8},
		testutil.StaticRule("core-one", "core", 1, rules.StatusPass, "one"),
		testutil.StaticRule("core-two", "core", 1, rules.StatusPass, "two"),
	)

	var pages []*model.CrawledPage
	for i := 0; i < 50; i++ {
		pages = append(pages, &model.CrawledPage{URL: fmt.Sprintf("https://e.com/%d", i), StatusCode: 200})
	}
	res, err := a.Audit(context.Background(), "https://e.com/", pages)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	outcomes := res.Categories[0].Outcomes
	if len(outcomes) != 100 {
		t.Fatalf("outcomes = %d, want 100", len(outcomes))
	}
	for i, o := range outcomes {
		wantURL := fmt.Sprintf("https://e.com/%d", i/2)
		wantRule := "core-one"
		if i%2 == 1 {
			wantRule = "core-two"
		}
		if o.PageURL != wantURL || o.RuleID != wantRule {
			t.Fatalf("outcome %d = %s@%s, want %s@%s", i, o.RuleID, o.PageURL, wantRule, wantURL)
		}
	}
}

func TestAudit_PanickingRuleFailsAlone(t *testing.T) {
	t.Parallel()
	boom := rules.Rule{ID: "core-boom", Category: "core", Weight: 1, Run: func(*rules.PageContext) rules.Outcome {
		panic("nil map")
	}}
	a := newTestAuditor(t, auditor.Config{}, boom,
		testutil.StaticRule("core-ok", "core", 1, rules.StatusPass, "ok"))

	outcomes := a.EvaluatePage(rules.NewPageContext(&model.CrawledPage{URL: "https://e.com/"}))
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	if outcomes[0].Status != rules.StatusFail {
		t.Errorf("panicking rule status = %s, want fail", outcomes[0].Status)
	}
	if outcomes[1].Status != rules.StatusPass {
		t.Errorf("second rule status = %s, want pass", outcomes[1].Status)
	}
}

func TestAudit_CancelledContext(t *testing.T) {
	t.Parallel()
	a := newTestAuditor(t, auditor.Config{},
		testutil.StaticRule("core-ok", "core", 1, rules.StatusPass, "ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Audit(ctx, "https://e.com/", testPages()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ─── Construction ──────────────────────────────────────────────────────

func TestNew_RejectsBadCatalogAndPatterns(t *testing.T) {
	t.Parallel()
	reg := rules.NewRegistry()

	bad := []rules.Category{{ID: "core", Weight: 90}}
	_, err := auditor.New(reg, bad, auditor.Config{}, nil)
	var cwe *rules.CategoryWeightError
	if !errors.As(err, &cwe) {
		t.Errorf("err = %v, want CategoryWeightError", err)
	}

	_, err = auditor.New(reg, testCategories, auditor.Config{Enable: []string{""}}, nil)
	var ipe *rules.InvalidPatternError
	if !errors.As(err, &ipe) {
		t.Errorf("err = %v, want InvalidPatternError", err)
	}
}

// ─── Crawl to audit ────────────────────────────────────────────────────

func storedCrawl(t *testing.T) (*projectdb.Store, *projectdb.Crawl, *auditdb.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	mgr := projectdb.NewManager(dir, nil)
	t.Cleanup(func() { _ = mgr.CloseAll() })
	store, project, err := mgr.Project(ctx, "e.com")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	crawl, err := store.CreateCrawl(ctx, project.ID, projectdb.CrawlInput{StartURL: "https://e.com/"})
	if err != nil {
		t.Fatalf("CreateCrawl: %v", err)
	}
	if _, err := store.InsertPages(ctx, crawl.ID, testPages()); err != nil {
		t.Fatalf("InsertPages: %v", err)
	}
	if err := store.CompleteCrawl(ctx, crawl.ID, projectdb.CrawlStats{PagesCrawled: 3, PagesFailed: 1}); err != nil {
		t.Fatalf("CompleteCrawl: %v", err)
	}

	audits, err := auditdb.Open(filepath.Join(dir, "audits.db"), nil)
	if err != nil {
		t.Fatalf("auditdb.Open: %v", err)
	}
	t.Cleanup(func() { _ = audits.Close() })
	return store, crawl, audits
}

func TestAuditCrawl_RecordsAuditAndIssues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, crawl, audits := storedCrawl(t)

	a := newTestAuditor(t, auditor.DefaultConfig(),
		testutil.PathRule("core-path", "core", 1, "/bad", "bad path"),
		testutil.StaticRule("perf-slow", "perf", 1, rules.StatusWarn, "slow"),
	)
	audit, res, err := a.AuditCrawl(ctx, store, crawl.ID, audits)
	if err != nil {
		t.Fatalf("AuditCrawl: %v", err)
	}
	if audit.Status != auditdb.AuditCompleted || audit.OverallScore != res.OverallScore {
		t.Errorf("audit = %+v", audit)
	}
	if audit.CrawlID != crawl.ID || audit.Domain != "e.com" {
		t.Errorf("linkage = %s/%s", audit.Domain, audit.CrawlID)
	}

	counts, err := audits.GetIssueCounts(ctx, audit.ID)
	if err != nil {
		t.Fatalf("GetIssueCounts: %v", err)
	}
	if counts.Critical != 1 || counts.Warning != 1 {
		t.Errorf("counts = %+v, want 1 critical and 1 warning", counts)
	}
}

func TestAuditCrawl_CancelledMidwayIsRecorded(t *testing.T) {
	t.Parallel()
	store, crawl, audits := storedCrawl(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := rules.Rule{
		ID:       "core-stop",
		Category: "core",
		Weight:   1,
		Run: func(*rules.PageContext) rules.Outcome {
			cancel()
			return rules.Pass("ok")
		},
	}
	a := newTestAuditor(t, auditor.Config{Concurrency: 1}, stop)

	if _, _, err := a.AuditCrawl(ctx, store, crawl.ID, audits); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	list, err := audits.ListAudits(context.Background(), auditdb.AuditFilter{Domain: "e.com"})
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d audits, want 1", len(list))
	}
	if list[0].Status != auditdb.AuditCancelled {
		t.Errorf("status = %s, want cancelled", list[0].Status)
	}
}
