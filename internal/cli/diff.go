package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

func newDiffCommand(opts *rootOptions) *cobra.Command {
	var baseCrawl, headCrawl string
	cmd := &cobra.Command{
		Use:   "diff <domain> <page-url>",
		Short: "Show how a page's stored HTML changed between two crawls",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := projectdb.ExtractDomain(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(func(a *app.Application) error {
				if !a.Projects.Exists(domain) {
					return fmt.Errorf("%s: %w", domain, projectdb.ErrProjectNotFound)
				}
				store, head, err := a.ResolveCrawl(cmd.Context(), domain, headCrawl)
				if err != nil {
					return err
				}
				chunks, err := store.DiffPageHTML(cmd.Context(), baseCrawl, head, args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(chunks) == 0 {
					fmt.Fprintln(out, "no changes")
					return nil
				}
				for _, c := range chunks {
					mark := "+"
					if c.Type == "removed" {
						mark = "-"
					}
					for _, line := range strings.Split(strings.TrimRight(c.Content, "\n"), "\n") {
						fmt.Fprintf(out, "%s %s\n", mark, line)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&baseCrawl, "base", "", "crawl id to compare from")
	cmd.Flags().StringVar(&headCrawl, "head", "", "crawl id to compare to (default latest)")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}
