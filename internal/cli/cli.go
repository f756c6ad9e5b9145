// Package cli is the sitescore command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/logging"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	dataDir    string
	logLevel   string
}

// NewRootCommand builds the sitescore command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sitescore",
		Short:         "Score and track the SEO health of crawled sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./sitescore.yaml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides data_dir)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newMigrateCommand(opts),
		newRollbackCommand(opts),
		newAuditCommand(opts),
		newAuditsCommand(opts),
		newIssuesCommand(opts),
		newProjectsCommand(opts),
		newCacheCommand(opts),
		newLinksCommand(opts),
		newDiffCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// loadConfig resolves configuration and applies flag overrides.
func (o *rootOptions) loadConfig() (*app.Config, error) {
	cfg, err := app.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// openApp loads config and opens the application. Callers must Close it.
func (o *rootOptions) openApp() (*app.Application, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, "cli")
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, logger, app.Options{})
}

// withApp runs fn against an opened application and closes it afterwards.
func (o *rootOptions) withApp(fn func(a *app.Application) error) error {
	a, err := o.openApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.Logger.Warn("close application", logging.Err(cerr))
		}
	}()
	return fn(a)
}
