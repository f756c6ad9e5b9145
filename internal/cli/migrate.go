package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/migrate"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy crawl and report JSON files into the databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.Application) error {
				rep, err := a.Migrator().Run(cmd.Context(), migrate.Options{DryRun: dryRun})
				if err != nil {
					return err
				}
				renderMigration(cmd, rep)
				if n := rep.Crawls.Failed + rep.Reports.Failed; n > 0 {
					return fmt.Errorf("%d legacy file(s) failed to migrate", n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report pending files")
	return cmd
}

func renderMigration(cmd *cobra.Command, rep *migrate.Report) {
	out := cmd.OutOrStdout()
	if rep.DryRun {
		fmt.Fprintf(out, "pending: %d crawl file(s), %d report file(s)\n",
			len(rep.Detection.CrawlFiles), len(rep.Detection.ReportFiles))
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Kind", "Succeeded", "Skipped", "Failed"})
	t.AppendRow(table.Row{"crawls", rep.Crawls.Succeeded, rep.Crawls.Skipped, rep.Crawls.Failed})
	t.AppendRow(table.Row{"reports", rep.Reports.Succeeded, rep.Reports.Skipped, rep.Reports.Failed})
	t.Render()

	for _, e := range rep.Errors {
		fmt.Fprintln(out, "  !", e)
	}
	for _, b := range rep.BackedUp {
		fmt.Fprintln(out, "backup:", b)
	}
}

func newRollbackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Restore legacy directories from their migration backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			restored, err := migrate.Rollback(cfg.DataDir)
			for _, dir := range restored {
				fmt.Fprintln(cmd.OutOrStdout(), "restored:", dir)
			}
			if err == nil && len(restored) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to restore")
			}
			return err
		},
	}
}
