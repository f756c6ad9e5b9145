package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

func newAuditCommand(opts *rootOptions) *cobra.Command {
	var crawlID string
	cmd := &cobra.Command{
		Use:   "audit <domain>",
		Short: "Audit a stored crawl and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := projectdb.ExtractDomain(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(func(a *app.Application) error {
				if !a.Projects.Exists(domain) {
					return fmt.Errorf("%s: %w", domain, projectdb.ErrProjectNotFound)
				}
				audit, res, err := a.AuditDomain(cmd.Context(), domain, crawlID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "audit %s: score %d over %s page(s)\n",
					audit.ID, audit.OverallScore, humanize.Comma(int64(audit.PagesAudited)))

				t := newTable(out)
				t.AppendHeader(table.Row{"Category", "Score", "Pass", "Warn", "Fail"})
				for _, c := range res.Categories {
					t.AppendRow(table.Row{c.CategoryID, c.Score, c.PassCount, c.WarnCount, c.FailCount})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&crawlID, "crawl", "", "crawl id (default latest)")
	return cmd
}

func newAuditsCommand(opts *rootOptions) *cobra.Command {
	var domain string
	var limit int
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "List recorded audits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.Application) error {
				audits, err := a.Audits.ListAudits(cmd.Context(), auditdb.AuditFilter{Domain: domain, Limit: limit})
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"ID", "Domain", "Status", "Score", "Pages", "Started"})
				for _, au := range audits {
					t.AppendRow(table.Row{au.ID, au.Domain, au.Status, au.OverallScore, au.PagesAudited, ago(au.StartedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "only audits of this domain")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func newIssuesCommand(opts *rootOptions) *cobra.Command {
	var severity string
	var top int
	cmd := &cobra.Command{
		Use:   "issues <audit-id>",
		Short: "Show the derived issues of an audit by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sev := auditdb.Severity(severity)
			switch sev {
			case "", auditdb.SeverityCritical, auditdb.SeverityWarning, auditdb.SeverityInfo:
			default:
				return fmt.Errorf("invalid severity %q", severity)
			}
			return opts.withApp(func(a *app.Application) error {
				ctx := cmd.Context()
				if _, err := a.Audits.GetAudit(ctx, args[0]); err != nil {
					return err
				}
				issues, err := a.Audits.GetIssues(ctx, args[0], auditdb.IssueFilter{Severity: sev, Limit: top})
				if err != nil {
					return err
				}
				counts, err := a.Audits.GetIssueCounts(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				t := newTable(out)
				t.AppendHeader(table.Row{"Priority", "Severity", "Rule", "Pages", "Message"})
				for _, is := range issues {
					t.AppendRow(table.Row{is.PriorityScore, is.Severity, is.RuleID, is.AffectedCount, is.Message})
				}
				t.Render()
				fmt.Fprintf(out, "%d critical, %d warning, %d info\n", counts.Critical, counts.Warning, counts.Info)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "critical, warning or info")
	cmd.Flags().IntVar(&top, "top", 0, "only the N highest-priority issues")
	return cmd
}

func newProjectsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects and their latest crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.Application) error {
				domains, err := a.Projects.ListDomains()
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Domain", "Latest crawl", "Status", "Pages", "Started"})
				for _, d := range domains {
					store, project, err := a.Projects.Project(cmd.Context(), d)
					if err != nil {
						return err
					}
					c, err := store.GetLatestCrawl(cmd.Context(), project.ID)
					if err != nil {
						t.AppendRow(table.Row{d, "-", "-", 0, "-"})
						continue
					}
					t.AppendRow(table.Row{d, c.ID, c.Status, c.Stats.PagesCrawled, ago(c.StartedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
}
