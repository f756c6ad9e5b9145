// Package auditor runs the active rules over crawled pages and turns the
// outcomes into a scored audit result.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/model"
	"github.com/raysh454/sitescore/internal/rules"
	"github.com/raysh454/sitescore/internal/scoring"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// Config selects rules and bounds parallelism.
type Config struct {
	Enable      []string `mapstructure:"enable"`
	Disable     []string `mapstructure:"disable"`
	Concurrency int      `mapstructure:"concurrency"`
}

// DefaultConfig enables every rule and evaluates four pages at a time.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Auditor evaluates a fixed set of active rules. It is safe for concurrent use.
type Auditor struct {
	categories []rules.Category
	active     []rules.Rule
	cfg        Config
	logger     logging.Logger
	now        func() time.Time
}

// New validates the category catalog and resolves the active rules from reg.
func New(reg *rules.Registry, categories []rules.Category, cfg Config, logger logging.Logger) (*Auditor, error) {
	if reg == nil {
		return nil, fmt.Errorf("auditor: registry is nil")
	}
	if err := rules.ValidateCategories(categories); err != nil {
		return nil, fmt.Errorf("auditor: %w", err)
	}
	sel, err := rules.NewSelector(cfg.Enable, cfg.Disable)
	if err != nil {
		return nil, fmt.Errorf("auditor: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	a := &Auditor{
		categories: append([]rules.Category(nil), categories...),
		active:     reg.Active(sel),
		cfg:        cfg,
		logger:     logger.With(logging.F("component", "auditor")),
		now:        func() time.Time { return time.Now().UTC() },
	}
	a.logger.Debug("auditor ready", logging.F("active_rules", len(a.active)), logging.F("registered", reg.Count()))
	return a, nil
}

// ActiveRules returns the rules that will run, in registration order.
func (a *Auditor) ActiveRules() []rules.Rule {
	return append([]rules.Rule(nil), a.active...)
}

// Categories returns the catalog the auditor scores against.
func (a *Auditor) Categories() []rules.Category {
	return append([]rules.Category(nil), a.categories...)
}

// EvaluatePage runs every active rule over one page, in rule order.
func (a *Auditor) EvaluatePage(pc *rules.PageContext) []scoring.RuleOutcome {
	out := make([]scoring.RuleOutcome, 0, len(a.active))
	for _, r := range a.active {
		o := a.run(r, pc)
		metrics.RuleEvaluations.WithLabelValues(string(o.Status)).Inc()
		out = append(out, scoring.RuleOutcome{
			RuleID:  r.ID,
			PageURL: pc.URL,
			Status:  o.Status,
			Message: o.Message,
			Details: o.Details,
			Weight:  r.Weight,
		})
	}
	return out
}

// run shields the audit from a misbehaving rule: a panic or an invalid
// status becomes a failure of that rule only.
func (a *Auditor) run(r rules.Rule, pc *rules.PageContext) (o rules.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("rule panicked", logging.F("rule", r.ID), logging.F("url", pc.URL), logging.F("panic", fmt.Sprint(p)))
			o = rules.Fail(fmt.Sprintf("rule error: %v", p), nil)
		}
	}()
	o = r.Run(pc)
	if !o.Status.Valid() {
		o = rules.Fail(fmt.Sprintf("rule returned invalid status %q", o.Status), nil)
	}
	return o
}

// Audit evaluates every page that was fetched without error and aggregates
// the outcomes per category. Categories follow catalog order; outcomes inside
// a category follow page order then rule order.
func (a *Auditor) Audit(ctx context.Context, startURL string, pages []*model.CrawledPage) (*scoring.AuditResult, error) {
	perPage := make([][]scoring.RuleOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, p := range pages {
		if p == nil || p.HasError() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perPage[i] = a.EvaluatePage(rules.NewPageContext(p))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit %s: %w", startURL, err)
	}

	byCategory := map[string][]scoring.RuleOutcome{}
	var unknown []string
	known := rules.CategoryIndex(a.categories)
	categoryOf := make(map[string]string, len(a.active))
	for _, r := range a.active {
		categoryOf[r.ID] = r.Category
		if _, ok := known[r.Category]; !ok && byCategory[r.Category] == nil {
			unknown = append(unknown, r.Category)
			byCategory[r.Category] = []scoring.RuleOutcome{}
		}
	}
	for _, outcomes := range perPage {
		for _, o := range outcomes {
			cat := categoryOf[o.RuleID]
			byCategory[cat] = append(byCategory[cat], o)
		}
	}

	var results []scoring.CategoryResult
	order := make([]string, 0, len(a.categories)+len(unknown))
	for _, c := range a.categories {
		order = append(order, c.ID)
	}
	order = append(order, unknown...)
	for _, id := range order {
		outcomes := byCategory[id]
		if len(outcomes) == 0 {
			continue
		}
		results = append(results, scoring.BuildCategoryResult(id, outcomes))
	}

	res := scoring.BuildAuditResult(startURL, results, a.categories, a.now(), len(pages))
	a.logger.Info("audit evaluated",
		logging.F("url", startURL),
		logging.F("pages", len(pages)),
		logging.F("categories", len(results)),
		logging.F("score", res.OverallScore))
	return &res, nil
}

// AuditCrawl audits the stored pages of a crawl and records the result in
// the audits database. The audit is marked cancelled when ctx is cancelled
// and failed when evaluation or storage fails otherwise.
func (a *Auditor) AuditCrawl(ctx context.Context, project *projectdb.Store, crawlID string, audits *auditdb.Store) (*auditdb.Audit, *scoring.AuditResult, error) {
	crawl, err := project.GetCrawl(ctx, crawlID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := project.ListPagesWithHTML(ctx, crawlID, projectdb.PageFilter{})
	if err != nil {
		return nil, nil, err
	}

	audit, err := audits.CreateAudit(ctx, auditdb.AuditInput{
		Domain:      project.Domain(),
		ProjectName: project.Domain(),
		CrawlID:     crawlID,
		StartURL:    crawl.StartURL,
		Config: map[string]any{
			"enable":  a.cfg.Enable,
			"disable": a.cfg.Disable,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	pages := make([]*model.CrawledPage, 0, len(stored))
	for _, p := range stored {
		pages = append(pages, p.ToCrawledPage())
	}
	res, err := a.Audit(ctx, crawl.StartURL, pages)
	if err == nil {
		err = audits.RecordAuditResult(ctx, audit.ID, res, a.categories)
	}
	if err != nil {
		a.abort(ctx, audits, audit.ID, err)
		return nil, nil, err
	}

	audit, err = audits.GetAudit(ctx, audit.ID)
	if err != nil {
		return nil, nil, err
	}
	return audit, res, nil
}

// abort moves a running audit to its terminal state after err. The write
// uses a context detached from ctx's cancellation.
func (a *Auditor) abort(ctx context.Context, audits *auditdb.Store, auditID string, err error) {
	wctx := context.WithoutCancel(ctx)
	var werr error
	if errors.Is(err, context.Canceled) {
		werr = audits.CancelAudit(wctx, auditID)
	} else {
		werr = audits.FailAudit(wctx, auditID, err.Error())
	}
	if werr != nil && !errors.Is(werr, auditdb.ErrInvalidTransition) {
		a.logger.Error("finish aborted audit", logging.F("audit_id", auditID), logging.Err(werr))
	}
}
