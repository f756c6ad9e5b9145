package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/sitescore/internal/cli"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

const legacyReport = `{
  "url": "https://a.com/",
  "overallScore": 80,
  "timestamp": "2024-03-01T10:00:00Z",
  "categories": [
    {"categoryId": "core", "score": 50, "results": [
      {"ruleId": "core-title", "status": "fail", "message": "Missing title"},
      {"ruleId": "core-desc", "status": "warn", "message": "Short description"}
    ]},
    {"categoryId": "perf", "score": 100, "results": [
      {"ruleId": "perf-ttfb", "status": "pass", "message": "ok"}
    ]}
  ]
}`

func writeReport(t *testing.T, dataDir, name string) {
	t.Helper()
	dir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(legacyReport), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ─── Migration ─────────────────────────────────────────────────────────

func TestMigrate_DryRunThenRunThenRollback(t *testing.T) {
	dataDir := t.TempDir()
	writeReport(t, dataDir, "a.json")

	out, err := run(t, dataDir, "migrate", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "0 crawl file(s), 1 report file(s)") {
		t.Errorf("unexpected dry run output: %s", out)
	}

	out, err = run(t, dataDir, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "reports.backup") {
		t.Errorf("expected backup path in output: %s", out)
	}

	out, err = run(t, dataDir, "audits")
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if !strings.Contains(out, "legacy-a") || !strings.Contains(out, "a.com") {
		t.Errorf("expected migrated audit listed: %s", out)
	}

	out, err = run(t, dataDir, "issues", "legacy-a", "--top", "1")
	if err != nil {
		t.Fatalf("issues: %v", err)
	}
	if !strings.Contains(out, "core-title") || strings.Contains(out, "core-desc") {
		t.Errorf("expected only the top issue: %s", out)
	}
	if !strings.Contains(out, "1 critical, 1 warning, 0 info") {
		t.Errorf("expected issue counts: %s", out)
	}

	out, err = run(t, dataDir, "rollback")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(out, "restored:") {
		t.Errorf("expected restored dir: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "reports", "a.json")); err != nil {
		t.Errorf("expected legacy file restored: %v", err)
	}
}

func TestMigrate_FailedFileReturnsError(t *testing.T) {
	dataDir := t.TempDir()
	writeReport(t, dataDir, "a.json")
	if err := os.WriteFile(filepath.Join(dataDir, "reports", "bad.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dataDir, "migrate")
	if err == nil {
		t.Fatal("expected an error when a file fails")
	}
	if !strings.Contains(out, "bad.json") {
		t.Errorf("expected failing file in output: %s", out)
	}
}

func TestRollback_NothingToRestore(t *testing.T) {
	out, err := run(t, t.TempDir(), "rollback")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "nothing to restore") {
		t.Errorf("unexpected output: %s", out)
	}
}

// ─── Queries ───────────────────────────────────────────────────────────

func TestIssues_UnknownAudit(t *testing.T) {
	if _, err := run(t, t.TempDir(), "issues", "missing"); err == nil {
		t.Fatal("expected error for unknown audit")
	}
}

func TestIssues_InvalidSeverity(t *testing.T) {
	if _, err := run(t, t.TempDir(), "issues", "x", "--severity", "urgent"); err == nil {
		t.Fatal("expected error for invalid severity")
	}
}

func TestAudit_UnknownProject(t *testing.T) {
	dataDir := t.TempDir()
	if _, err := run(t, dataDir, "audit", "nobody.org"); err == nil {
		t.Fatal("expected error for unknown project")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "projects", "nobody.org")); !os.IsNotExist(err) {
		t.Error("audit must not create a project for an unknown domain")
	}
}

func TestCache_StatsAndCleanup(t *testing.T) {
	dataDir := t.TempDir()

	out, err := run(t, dataDir, "cache", "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "entries 0") {
		t.Errorf("unexpected stats output: %s", out)
	}

	out, err = run(t, dataDir, "cache", "cleanup")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "removed 0 expired entries") {
		t.Errorf("unexpected cleanup output: %s", out)
	}
}

func TestProjects_Empty(t *testing.T) {
	if _, err := run(t, t.TempDir(), "projects"); err != nil {
		t.Fatal(err)
	}
}

// ─── Diff ──────────────────────────────────────────────────────────────

func seedTwoCrawls(t *testing.T, dataDir string) {
	t.Helper()
	ctx := context.Background()
	m := projectdb.NewManager(dataDir, nil)
	defer m.CloseAll()

	s, p, err := m.Project(ctx, "shop.example")
	if err != nil {
		t.Fatal(err)
	}
	for id, html := range map[string]string{
		"old": "<h1>Spring sale</h1>\n<p>Free shipping</p>",
		"new": "<h1>Summer sale</h1>\n<p>Free shipping</p>",
	} {
		if _, err := s.CreateCrawl(ctx, p.ID, projectdb.CrawlInput{ID: id, StartURL: "https://shop.example/"}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.InsertPage(ctx, id, &model.CrawledPage{URL: "https://shop.example/", StatusCode: 200, HTML: html}); err != nil {
			t.Fatal(err)
		}
	}
}

func hasLinePrefix(out, prefix string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func TestDiff_ShowsChangedSpans(t *testing.T) {
	dataDir := t.TempDir()
	seedTwoCrawls(t, dataDir)

	out, err := run(t, dataDir, "diff", "shop.example", "https://shop.example/", "--base", "old", "--head", "new")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !hasLinePrefix(out, "- ") || !hasLinePrefix(out, "+ ") {
		t.Errorf("unexpected diff output:\n%s", out)
	}
	if strings.Contains(out, "Free shipping") {
		t.Errorf("unchanged text leaked into diff:\n%s", out)
	}

	out, err = run(t, dataDir, "diff", "shop.example", "https://shop.example/", "--base", "new", "--head", "new")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no changes") {
		t.Errorf("identical crawls should report no changes, got:\n%s", out)
	}
}

func TestDiff_RequiresBase(t *testing.T) {
	dataDir := t.TempDir()
	seedTwoCrawls(t, dataDir)
	if _, err := run(t, dataDir, "diff", "shop.example", "https://shop.example/"); err == nil {
		t.Fatal("expected error without --base")
	}
}

func TestDomainArgumentIsNormalized(t *testing.T) {
	dataDir := t.TempDir()
	seedTwoCrawls(t, dataDir)

	if _, err := run(t, dataDir, "links", "broken", "www.Shop.Example"); err != nil {
		t.Fatalf("links broken: %v", err)
	}
	out, err := run(t, dataDir, "diff", "https://www.shop.example/", "https://shop.example/", "--base", "new", "--head", "new")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "no changes") {
		t.Errorf("unexpected diff output:\n%s", out)
	}
}
