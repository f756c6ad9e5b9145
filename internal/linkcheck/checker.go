// Package linkcheck verifies link targets through the link cache and writes
// the outcome back to the links of a crawl.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/storage/linkcache"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// Config bounds the checker.
type Config struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig probes eight targets at a time with a ten second timeout.
func DefaultConfig() Config {
	return Config{Concurrency: 8, Timeout: 10 * time.Second}
}

// Summary counts what one check pass did.
type Summary struct {
	Targets int   `json:"targets"`
	Cached  int   `json:"cached"`
	Checked int   `json:"checked"`
	Broken  int   `json:"broken"`
	Updated int64 `json:"updated"`
}

// Checker resolves link targets from the cache and probes the rest.
type Checker struct {
	cache  *linkcache.Cache
	prober Prober
	cfg    Config
	logger logging.Logger
}

// New returns a Checker. A nil prober gets an HTTPProber built from cfg.
func New(cache *linkcache.Cache, prober Prober, cfg Config, logger logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if prober == nil {
		prober = NewHTTPProber(nil, cfg.Timeout, logger)
	}
	return &Checker{
		cache:  cache,
		prober: prober,
		cfg:    cfg,
		logger: logger.With(logging.F("component", "linkcheck")),
	}
}

// Broken reports whether a result counts as a broken target.
func Broken(r linkcache.Result) bool {
	return r.Error != "" || (r.StatusCode != nil && *r.StatusCode >= 400)
}

// CheckURLs returns one result per url, in input order. Valid cache entries
// are reused; everything else is probed and written back to the cache. A
// failed probe is recorded in its result and never aborts the pass.
func (c *Checker) CheckURLs(ctx context.Context, urls []string) ([]linkcache.Result, Summary, error) {
	sum := Summary{Targets: len(urls)}
	results := make([]linkcache.Result, len(urls))
	var pending []int

	for i, u := range urls {
		e, err := c.cache.Get(ctx, u)
		switch {
		case err == nil && e.IsValid:
			results[i] = linkcache.Result{URL: u, StatusCode: e.StatusCode, Error: e.Error}
			sum.Cached++
		case err == nil, errors.Is(err, linkcache.ErrEntryNotFound):
			pending = append(pending, i)
		default:
			return nil, sum, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, i := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.probe(gctx, urls[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, sum, err
	}
	if err := ctx.Err(); err != nil {
		return nil, sum, err
	}

	fresh := make([]linkcache.Result, 0, len(pending))
	for _, i := range pending {
		fresh = append(fresh, results[i])
	}
	if err := c.cache.SetMany(ctx, fresh); err != nil {
		return nil, sum, err
	}
	sum.Checked = len(fresh)
	for _, r := range results {
		if Broken(r) {
			sum.Broken++
		}
	}
	return results, sum, nil
}

func (c *Checker) probe(ctx context.Context, url string) linkcache.Result {
	code, err := c.prober.Probe(ctx, url)
	if err != nil {
		metrics.LinkChecks.WithLabelValues("error").Inc()
		return linkcache.Result{URL: url, Error: err.Error()}
	}
	r := linkcache.Result{URL: url, StatusCode: &code}
	if Broken(r) {
		metrics.LinkChecks.WithLabelValues("broken").Inc()
	} else {
		metrics.LinkChecks.WithLabelValues("ok").Inc()
	}
	return r
}

// CheckCrawl checks every distinct external link target of a crawl and
// back-fills the status of the links pointing at it.
func (c *Checker) CheckCrawl(ctx context.Context, store *projectdb.Store, crawlID string) (*Summary, error) {
	if _, err := store.GetCrawl(ctx, crawlID); err != nil {
		return nil, err
	}
	targets, err := store.GetExternalLinkTargets(ctx, crawlID)
	if err != nil {
		return nil, err
	}
	results, sum, err := c.CheckURLs(ctx, targets)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		n, err := store.UpdateLinkStatus(ctx, crawlID, r.URL, r.StatusCode, r.Error)
		if err != nil {
			return nil, fmt.Errorf("back-fill %s: %w", r.URL, err)
		}
		sum.Updated += n
	}
	c.logger.Info("links checked",
		logging.F("crawl_id", crawlID),
		logging.F("targets", sum.Targets),
		logging.F("cached", sum.Cached),
		logging.F("broken", sum.Broken))
	return &sum, nil
}
