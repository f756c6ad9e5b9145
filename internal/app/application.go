package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raysh454/sitescore/internal/auditor"
	"github.com/raysh454/sitescore/internal/linkcheck"
	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/migrate"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/rules/builtin"
	"github.com/raysh454/sitescore/internal/scoring"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/linkcache"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

const (
	AuditsDBFile    = "audits.db"
	LinkCacheDBFile = "link-cache.db"
)

// Application is the runtime state container. It owns every database
// handle and the rule registry; pass it to the CLI and the API server
// instead of opening stores ad hoc.
type Application struct {
	Config *Config
	Logger logging.Logger

	Registry   *rules.Registry
	Categories []rules.Category
	Auditor    *auditor.Auditor

	Projects    *projectdb.Manager
	Audits      *auditdb.Store
	LinkCache   *linkcache.Cache
	LinkChecker *linkcheck.Checker
}

// Options overrides the stock rule set, catalog and link prober, mostly for
// tests.
type Options struct {
	Rules      []rules.Rule
	Categories []rules.Category
	Prober     linkcheck.Prober
}

// NewApplication builds the registry, opens the shared databases under
// cfg.DataDir and wires the auditor. Call Close when done.
func NewApplication(cfg *Config, logger logging.Logger, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Rules == nil {
		opts.Rules = builtin.All()
	}
	if opts.Categories == nil {
		opts.Categories = rules.DefaultCategories()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	reg, err := rules.BuildRegistry(opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("build rule registry: %w", err)
	}

	audCfg := cfg.Audit
	audCfg.Enable = append(append([]string{}, cfg.Rules.Enable...), audCfg.Enable...)
	audCfg.Disable = append(append([]string{}, cfg.Rules.Disable...), audCfg.Disable...)
	aud, err := auditor.New(reg, opts.Categories, audCfg, logger)
	if err != nil {
		return nil, err
	}

	audits, err := auditdb.Open(filepath.Join(cfg.DataDir, AuditsDBFile), logger)
	if err != nil {
		return nil, err
	}
	cache, err := linkcache.Open(filepath.Join(cfg.DataDir, LinkCacheDBFile), cfg.LinkCache.TTL(), logger)
	if err != nil {
		_ = audits.Close()
		return nil, err
	}

	logger.Info("application ready",
		logging.F("data_dir", cfg.DataDir),
		logging.F("rules", reg.Count()),
		logging.F("active_rules", len(aud.ActiveRules())))

	return &Application{
		Config:      cfg,
		Logger:      logger,
		Registry:    reg,
		Categories:  opts.Categories,
		Auditor:     aud,
		Projects:    projectdb.NewManager(cfg.DataDir, logger),
		Audits:      audits,
		LinkCache:   cache,
		LinkChecker: linkcheck.New(cache, opts.Prober, cfg.LinkCheck, logger),
	}, nil
}

// Migrator returns a legacy-file migrator bound to this application's stores.
func (a *Application) Migrator() *migrate.Migrator {
	return migrate.New(a.Config.DataDir, a.Projects, a.Audits, a.Logger)
}

// AuditDomain audits a stored crawl of domain and records the result. An
// empty crawlID selects the latest crawl of the project.
func (a *Application) AuditDomain(ctx context.Context, domain, crawlID string) (*auditdb.Audit, *scoring.AuditResult, error) {
	store, crawlID, err := a.ResolveCrawl(ctx, domain, crawlID)
	if err != nil {
		return nil, nil, err
	}
	return a.Auditor.AuditCrawl(ctx, store, crawlID, a.Audits)
}

// ResolveCrawl opens the project of domain and defaults an empty crawlID to
// its latest crawl.
func (a *Application) ResolveCrawl(ctx context.Context, domain, crawlID string) (*projectdb.Store, string, error) {
	store, project, err := a.Projects.Project(ctx, domain)
	if err != nil {
		return nil, "", err
	}
	if crawlID != "" {
		return store, crawlID, nil
	}
	latest, err := store.GetLatestCrawl(ctx, project.ID)
	if err != nil {
		return nil, "", err
	}
	return store, latest.ID, nil
}

// CheckLinks checks the external link targets of a stored crawl of domain.
// An empty crawlID selects the latest crawl.
func (a *Application) CheckLinks(ctx context.Context, domain, crawlID string) (*linkcheck.Summary, error) {
	store, crawlID, err := a.ResolveCrawl(ctx, domain, crawlID)
	if err != nil {
		return nil, err
	}
	return a.LinkChecker.CheckCrawl(ctx, store, crawlID)
}

// Close releases every database handle, returning the first error.
func (a *Application) Close() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Debug("application shutdown")
	return errors.Join(a.Projects.CloseAll(), a.Audits.Close(), a.LinkCache.Close())
}
