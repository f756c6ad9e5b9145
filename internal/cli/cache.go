package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the link check cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show link cache counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(func(a *app.Application) error {
					st, err := a.LinkCache.Stats(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "entries %s (valid %s, expired %s, errors %s), ttl %s\n",
						humanize.Comma(int64(st.Total)), humanize.Comma(int64(st.Valid)),
						humanize.Comma(int64(st.Expired)), humanize.Comma(int64(st.Errors)),
						a.LinkCache.TTL())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete expired link cache entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(func(a *app.Application) error {
					n, err := a.LinkCache.Cleanup(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s expired entr%s\n", humanize.Comma(n), plural(n, "y", "ies"))
					return nil
				})
			},
		},
	)
	return cmd
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
