package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

func newLinksCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Check and inspect the links of a stored crawl",
	}

	var crawlID string
	check := &cobra.Command{
		Use:   "check <domain>",
		Short: "Probe external link targets through the link cache",
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
				sum, err := a.CheckLinks(cmd.Context(), domain, crawlID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d target(s): %d from cache, %d checked, %d broken; %d link row(s) updated\n",
					sum.Targets, sum.Cached, sum.Checked, sum.Broken, sum.Updated)
				return nil
			})
		},
	}
	check.Flags().StringVar(&crawlID, "crawl", "", "crawl id (default latest)")

	var brokenCrawl string
	broken := &cobra.Command{
		Use:   "broken <domain>",
		Short: "List links whose target failed the last check",
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
				store, id, err := a.ResolveCrawl(cmd.Context(), domain, brokenCrawl)
				if err != nil {
					return err
				}
				links, err := store.GetBrokenLinks(cmd.Context(), id)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Page", "Target", "Status", "Error"})
				for _, l := range links {
					status := "-"
					if l.TargetStatusCode != nil {
						status = fmt.Sprint(*l.TargetStatusCode)
					}
					t.AppendRow(table.Row{l.SourceURL, l.Href, status, l.TargetError})
				}
				t.Render()
				return nil
			})
		},
	}
	broken.Flags().StringVar(&brokenCrawl, "crawl", "", "crawl id (default latest)")

	cmd.AddCommand(check, broken)
	return cmd
}
