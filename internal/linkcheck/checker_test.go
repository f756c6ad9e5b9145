package linkcheck_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/sitescore/internal/linkcheck"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/storage/linkcache"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
	"github.com/raysh454/sitescore/internal/testutil"
)

// fakeProber answers from a fixed table and counts calls per URL.
type fakeProber struct {
	mu     sync.Mutex
	codes  map[string]int
	errs   map[string]error
	called map[string]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{codes: map[string]int{}, errs: map[string]error{}, called: map[string]int{}}
}

func (f *fakeProber) Probe(_ context.Context, url string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called[url]++
	if err, ok := f.errs[url]; ok {
		return 0, err
	}
	if code, ok := f.codes[url]; ok {
		return code, nil
	}
	return http.StatusOK, nil
}

func (f *fakeProber) calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called[url]
}

func newCache(t *testing.T, clock *testutil.Clock) *linkcache.Cache {
	t.Helper()
	c, err := linkcache.Open(filepath.Join(t.TempDir(), "link-cache.db"), time.Hour, testutil.NewDummyLogger(), linkcache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ─── CheckURLs ─────────────────────────────────────────────────────────

func TestCheckURLs_ProbesOnceThenUsesCache(t *testing.T) {
	clock := testutil.NewClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := newCache(t, clock)
	prober := newFakeProber()
	prober.codes["https://b.org/gone"] = 404
	prober.errs["https://c.net/"] = errors.New("dial tcp: no such host")
	ch := linkcheck.New(cache, prober, linkcheck.Config{Concurrency: 2}, nil)
	ctx := context.Background()
	urls := []string{"https://a.com/", "https://b.org/gone", "https://c.net/"}

	results, sum, err := ch.CheckURLs(ctx, urls)
	if err != nil {
		t.Fatalf("CheckURLs: %v", err)
	}
	if sum.Checked != 3 || sum.Cached != 0 || sum.Broken != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("result %d out of order: %s", i, r.URL)
		}
	}
	if results[1].StatusCode == nil || *results[1].StatusCode != 404 {
		t.Errorf("expected 404 for gone link, got %+v", results[1])
	}
	if results[2].Error == "" || results[2].StatusCode != nil {
		t.Errorf("expected error result, got %+v", results[2])
	}

	_, sum, err = ch.CheckURLs(ctx, urls)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Cached != 3 || sum.Checked != 0 || sum.Broken != 2 {
		t.Errorf("expected all cached on second pass, got %+v", sum)
	}
	if prober.calls("https://a.com/") != 1 {
		t.Errorf("expected one probe, got %d", prober.calls("https://a.com/"))
	}

	clock.Advance(2 * time.Hour)
	_, sum, err = ch.CheckURLs(ctx, urls[:1])
	if err != nil {
		t.Fatal(err)
	}
	if sum.Checked != 1 || prober.calls("https://a.com/") != 2 {
		t.Errorf("expired entry should be re-probed, summary %+v", sum)
	}
}

func TestCheckURLs_CancelledContext(t *testing.T) {
	cache := newCache(t, testutil.NewClock(time.Now()))
	ch := linkcheck.New(cache, newFakeProber(), linkcheck.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := ch.CheckURLs(ctx, []string{"https://a.com/"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBroken(t *testing.T) {
	code := func(v int) *int { return &v }
	cases := []struct {
		r    linkcache.Result
		want bool
	}{
		{linkcache.Result{StatusCode: code(200)}, false},
		{linkcache.Result{StatusCode: code(301)}, false},
		{linkcache.Result{StatusCode: code(400)}, true},
		{linkcache.Result{StatusCode: code(503)}, true},
		{linkcache.Result{Error: "timeout"}, true},
		{linkcache.Result{}, false},
	}
	for _, tc := range cases {
		if got := linkcheck.Broken(tc.r); got != tc.want {
			t.Errorf("Broken(%+v) = %v, want %v", tc.r, got, tc.want)
		}
	}
}

// ─── CheckCrawl ────────────────────────────────────────────────────────

func TestCheckCrawl_BackfillsLinks(t *testing.T) {
	ctx := context.Background()
	store, err := projectdb.Open(filepath.Join(t.TempDir(), "project.db"), "example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	project, err := store.GetOrCreateProject(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	crawl, err := store.CreateCrawl(ctx, project.ID, projectdb.CrawlInput{StartURL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := store.InsertPages(ctx, crawl.ID, []*model.CrawledPage{
		{URL: "https://example.com/", StatusCode: 200},
		{URL: "https://example.com/about", StatusCode: 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if _, err := store.InsertLinks(ctx, crawl.ID, id, []projectdb.LinkInput{
			{Href: "https://dead.org/", AnchorText: "dead"},
			{Href: "https://live.org/", AnchorText: "live"},
			{Href: "https://example.com/about", IsInternal: true},
		}); err != nil {
			t.Fatal(err)
		}
	}

	prober := newFakeProber()
	prober.codes["https://dead.org/"] = 410
	ch := linkcheck.New(newCache(t, testutil.NewClock(time.Now())), prober, linkcheck.DefaultConfig(), testutil.NewDummyLogger())

	sum, err := ch.CheckCrawl(ctx, store, crawl.ID)
	if err != nil {
		t.Fatalf("CheckCrawl: %v", err)
	}
	if sum.Targets != 2 || sum.Broken != 1 || sum.Updated != 4 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if prober.calls("https://example.com/about") != 0 {
		t.Error("internal links must not be probed")
	}

	broken, err := store.GetBrokenLinks(ctx, crawl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 2 {
		t.Fatalf("expected dead link on both pages, got %d", len(broken))
	}
	if broken[0].Href != "https://dead.org/" || *broken[0].TargetStatusCode != 410 {
		t.Errorf("unexpected broken link %+v", broken[0])
	}
}

func TestCheckCrawl_UnknownCrawl(t *testing.T) {
	store, err := projectdb.Open(filepath.Join(t.TempDir(), "project.db"), "example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ch := linkcheck.New(newCache(t, testutil.NewClock(time.Now())), newFakeProber(), linkcheck.DefaultConfig(), nil)

	if _, err := ch.CheckCrawl(context.Background(), store, "missing"); !errors.Is(err, projectdb.ErrCrawlNotFound) {
		t.Fatalf("expected ErrCrawlNotFound, got %v", err)
	}
}

// ─── HTTPProber ────────────────────────────────────────────────────────

func TestHTTPProber_HeadWithGetFallback(t *testing.T) {
	t.Parallel()
	var methods []string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Header.Get("User-Agent") != linkcheck.DefaultUserAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.URL.Path == "/nohead" && r.Method == http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case r.URL.Path == "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	p := linkcheck.NewHTTPProber(ts.Client(), 0, testutil.NewDummyLogger())
	ctx := context.Background()

	if code, err := p.Probe(ctx, ts.URL+"/ok"); err != nil || code != 200 {
		t.Errorf("ok: code %d err %v", code, err)
	}
	if code, err := p.Probe(ctx, ts.URL+"/missing"); err != nil || code != 404 {
		t.Errorf("missing: code %d err %v", code, err)
	}
	if code, err := p.Probe(ctx, ts.URL+"/nohead"); err != nil || code != 200 {
		t.Errorf("nohead: code %d err %v", code, err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"HEAD", "HEAD", "HEAD", "GET"}
	if len(methods) != len(want) {
		t.Fatalf("methods = %v, want %v", methods, want)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Errorf("methods = %v, want %v", methods, want)
			break
		}
	}
}

func TestHTTPProber_Unreachable(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	p := linkcheck.NewHTTPProber(nil, time.Second, nil)
	if _, err := p.Probe(context.Background(), url); err == nil {
		t.Fatal("expected error for closed server")
	}
}
