package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/server"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
	"github.com/raysh454/sitescore/internal/testutil"
)

type fixture struct {
	srv     *server.Server
	app     *app.Application
	auditID string
	crawlID string
}

// newFixture stores one crawl of example.com with two pages and audits it
// with a rule that fails on /bad and one that warns everywhere.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.DataDir = t.TempDir()
	logger := testutil.NewDummyLogger()

	a, err := app.NewApplication(cfg, logger, app.Options{
		Rules: []rules.Rule{
			testutil.PathRule("core-path", "core", 2, "/bad", "Broken page"),
			testutil.StaticRule("perf-slow", "perf", 1, rules.StatusWarn, "Slow"),
		},
		Categories: []rules.Category{{ID: "core", Name: "Core", Weight: 70}, {ID: "perf", Name: "Perf", Weight: 30}},
	})
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	store, project, err := a.Projects.Project(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	crawl, err := store.CreateCrawl(ctx, project.ID, projectdb.CrawlInput{StartURL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := store.InsertPages(ctx, crawl.ID, []*model.CrawledPage{
		{URL: "https://example.com/", StatusCode: 200, HTML: "<html></html>"},
		{URL: "https://example.com/bad", StatusCode: 200, HTML: "<html></html>"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertLinks(ctx, crawl.ID, ids[0], []projectdb.LinkInput{
		{Href: "https://example.com/bad", IsInternal: true},
		{Href: "https://other.org/", AnchorText: "other"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CompleteCrawl(ctx, crawl.ID, projectdb.CrawlStats{PagesCrawled: 2}); err != nil {
		t.Fatal(err)
	}
	audit, _, err := a.AuditDomain(ctx, "example.com", crawl.ID)
	if err != nil {
		t.Fatal(err)
	}

	s, err := server.NewServer(server.Config{ListenAddr: ":0", Logger: logger}, a)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &fixture{srv: s, app: a, auditID: audit.ID, crawlID: crawl.ID}
}

func doGet(t *testing.T, s http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestNewServer_NilApplication(t *testing.T) {
	if _, err := server.NewServer(server.Config{}, nil); err == nil {
		t.Fatal("expected error for nil application")
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_CORS_Preflight(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/audits", nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusNoContent)
}

// ─── Audits ────────────────────────────────────────────────────────────

func TestServer_ListAudits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits?domain=example.com&status=completed")
	expectStatus(t, rec, http.StatusOK)
	var audits []auditdb.Audit
	decodeJSON(t, rec, &audits)
	if len(audits) != 1 || audits[0].ID != f.auditID {
		t.Fatalf("expected the fixture audit, got %+v", audits)
	}

	rec = doGet(t, f.srv, "/audits?domain=nobody.org")
	expectStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &audits)
	if len(audits) != 0 {
		t.Errorf("expected empty list, got %d", len(audits))
	}
}

func TestServer_ListAudits_BadLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	expectStatus(t, doGet(t, f.srv, "/audits?limit=-1"), http.StatusBadRequest)
	expectStatus(t, doGet(t, f.srv, "/audits?offset=x"), http.StatusBadRequest)
}

func TestServer_GetAudit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits/"+f.auditID)
	expectStatus(t, rec, http.StatusOK)

	var body struct {
		ID           string                   `json:"auditId"`
		Status       string                   `json:"status"`
		CrawlID      string                   `json:"crawlId"`
		Categories   []auditdb.CategoryResult `json:"categories"`
		IssueCounts  auditdb.IssueCounts      `json:"issueCounts"`
		PagesAudited int                      `json:"pagesAudited"`
	}
	decodeJSON(t, rec, &body)
	if body.ID != f.auditID || body.Status != "completed" || body.CrawlID != f.crawlID {
		t.Errorf("unexpected audit %+v", body)
	}
	if len(body.Categories) != 2 {
		t.Errorf("expected 2 categories, got %d", len(body.Categories))
	}
	if body.IssueCounts.Critical != 1 || body.IssueCounts.Warning != 1 {
		t.Errorf("unexpected issue counts %+v", body.IssueCounts)
	}
	if body.PagesAudited != 2 {
		t.Errorf("expected 2 pages audited, got %d", body.PagesAudited)
	}
}

func TestServer_GetAudit_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{
		"/audits/missing",
		"/audits/missing/categories",
		"/audits/missing/results",
		"/audits/missing/issues",
		"/audits/missing/issues/counts",
	} {
		rec := doGet(t, f.srv, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestServer_RuleResults_FilterByStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits/"+f.auditID+"/results?status=fail")
	expectStatus(t, rec, http.StatusOK)
	var results []auditdb.RuleResult
	decodeJSON(t, rec, &results)
	if len(results) != 1 || results[0].PageURL != "https://example.com/bad" {
		t.Fatalf("expected the one failing result, got %+v", results)
	}

	expectStatus(t, doGet(t, f.srv, "/audits/"+f.auditID+"/results?status=maybe"), http.StatusBadRequest)
}

// ─── Issues ────────────────────────────────────────────────────────────

func TestServer_Issues_OrderedByPriority(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits/"+f.auditID+"/issues")
	expectStatus(t, rec, http.StatusOK)
	var issues []auditdb.Issue
	decodeJSON(t, rec, &issues)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	// critical on 1 page = 30, warning on 2 pages = round(50*log10(3)) = 24
	if issues[0].RuleID != "core-path" || issues[0].PriorityScore != 30 {
		t.Errorf("unexpected first issue %+v", issues[0])
	}
	if issues[1].RuleID != "perf-slow" || issues[1].AffectedCount != 2 {
		t.Errorf("unexpected second issue %+v", issues[1])
	}
}

func TestServer_Issues_Filters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var issues []auditdb.Issue
	rec := doGet(t, f.srv, "/audits/"+f.auditID+"/issues?severity=warning")
	expectStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &issues)
	if len(issues) != 1 || issues[0].Severity != auditdb.SeverityWarning {
		t.Errorf("severity filter: got %+v", issues)
	}

	rec = doGet(t, f.srv, "/audits/"+f.auditID+"/issues?min_priority=25")
	expectStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &issues)
	if len(issues) != 1 || issues[0].RuleID != "core-path" {
		t.Errorf("min_priority filter: got %+v", issues)
	}

	expectStatus(t, doGet(t, f.srv, "/audits/"+f.auditID+"/issues?severity=urgent"), http.StatusBadRequest)
	expectStatus(t, doGet(t, f.srv, "/audits/"+f.auditID+"/issues?limit=abc"), http.StatusBadRequest)
}

func TestServer_IssueCounts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/audits/"+f.auditID+"/issues/counts")
	expectStatus(t, rec, http.StatusOK)
	var counts auditdb.IssueCounts
	decodeJSON(t, rec, &counts)
	if counts != (auditdb.IssueCounts{Critical: 1, Warning: 1, Total: 2}) {
		t.Errorf("unexpected counts %+v", counts)
	}
}

// ─── Projects ──────────────────────────────────────────────────────────

func TestServer_ListProjects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/projects")
	expectStatus(t, rec, http.StatusOK)
	var domains []string
	decodeJSON(t, rec, &domains)
	if len(domains) != 1 || domains[0] != "example.com" {
		t.Errorf("unexpected domains %v", domains)
	}
}

func TestServer_ListCrawls(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/projects/example.com/crawls")
	expectStatus(t, rec, http.StatusOK)
	var body server.ProjectCrawls
	decodeJSON(t, rec, &body)
	if body.Project == nil || body.Project.Domain != "example.com" {
		t.Errorf("unexpected project %+v", body.Project)
	}
	if len(body.Crawls) != 1 || body.Crawls[0].ID != f.crawlID {
		t.Errorf("unexpected crawls %+v", body.Crawls)
	}
}

func TestServer_ListCrawls_DomainSpelling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/projects/www.Example.com/crawls")
	expectStatus(t, rec, http.StatusOK)
	var body server.ProjectCrawls
	decodeJSON(t, rec, &body)
	if body.Project == nil || body.Project.Domain != "example.com" {
		t.Errorf("unexpected project %+v", body.Project)
	}
}

func TestServer_UnknownProjectIsNotCreated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	expectStatus(t, doGet(t, f.srv, "/projects/nobody.org/crawls"), http.StatusNotFound)
	if f.app.Projects.Exists("nobody.org") {
		t.Error("lookup must not create a project database")
	}
}

func TestServer_CrawlDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	base := "/projects/example.com/crawls/" + f.crawlID

	rec := doGet(t, f.srv, base)
	expectStatus(t, rec, http.StatusOK)
	var crawl projectdb.Crawl
	decodeJSON(t, rec, &crawl)
	if crawl.Status != projectdb.CrawlCompleted {
		t.Errorf("expected completed crawl, got %s", crawl.Status)
	}

	rec = doGet(t, f.srv, base+"/links/stats")
	expectStatus(t, rec, http.StatusOK)
	var stats projectdb.LinkStats
	decodeJSON(t, rec, &stats)
	if stats.Total != 2 || stats.Internal != 1 || stats.External != 1 {
		t.Errorf("unexpected link stats %+v", stats)
	}

	expectStatus(t, doGet(t, f.srv, base+"/links/broken"), http.StatusOK)
	expectStatus(t, doGet(t, f.srv, base+"/images/stats"), http.StatusOK)
	expectStatus(t, doGet(t, f.srv, "/projects/example.com/crawls/missing"), http.StatusNotFound)
}

// ─── Catalog, cache, metrics ───────────────────────────────────────────

func TestServer_Categories(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/categories")
	expectStatus(t, rec, http.StatusOK)
	var cats []rules.Category
	decodeJSON(t, rec, &cats)
	if len(cats) != 2 || cats[0].ID != "core" {
		t.Errorf("unexpected categories %+v", cats)
	}
}

func TestServer_LinkCacheStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := doGet(t, f.srv, "/link-cache/stats")
	expectStatus(t, rec, http.StatusOK)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	doGet(t, f.srv, "/audits/"+f.auditID)
	rec := doGet(t, f.srv, "/metrics")
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, "sitescore_http_requests_total") {
		t.Error("expected http request counter in metrics output")
	}
	if !strings.Contains(body, `route="/audits/{auditID}`) {
		t.Error("expected requests labelled by route pattern")
	}
}
