// Package cli implements the qlm command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/logger"
)

type app struct {
	configPath string
}

// NewRootCommand builds the qlm command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "qlm",
		Short: "Rank documents with a smoothed query likelihood model",
		Long: `qlm scores every document of a collection against each query with a
query likelihood model using Jelinek-Mercer smoothing and writes a TREC run file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("backend", "", "collection backend (memory, segment, sqlite, postgres)")
	root.PersistentFlags().String("collection", "", "collection path")
	root.PersistentFlags().String("analyzer", "", "analyzer (standard, english, whitespace)")

	root.AddCommand(
		a.newRunCommand(),
		a.newStatsCommand(),
		a.newIndexCommand(),
		a.newVectorCommand(),
		a.newCacheCommand(),
	)
	return root
}

// Execute runs the command tree and returns the process exit status.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(root.ErrOrStderr(), "qlm:", err)
	return apperrors.ExitCode(err)
}

// loadConfig reads the config file, applies any flags the user set on cmd,
// finalises the result and installs the logger. The returned Config is not
// modified afterwards.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// applyFlags copies every changed flag in fs onto cfg. Commands register only
// the flags that make sense for them.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "log-level":
			cfg.Logging.Level = f.Value.String()
		case "backend":
			cfg.Collection.Backend = f.Value.String()
		case "collection":
			cfg.Collection.Path = f.Value.String()
		case "analyzer":
			cfg.Collection.Analyzer = f.Value.String()
		case "format":
			cfg.Collection.Format = f.Value.String()
		case "queries":
			cfg.Retrieval.QueryFile = f.Value.String()
		case "out":
			cfg.Retrieval.ResultFile = f.Value.String()
		case "run-tag":
			cfg.Retrieval.RunTag = f.Value.String()
		case "lambda":
			cfg.Retrieval.Lambda, err = fs.GetFloat64("lambda")
		case "max-results":
			cfg.Retrieval.MaxResults, err = fs.GetInt("max-results")
		case "filter-zero-evidence":
			cfg.Retrieval.FilterZeroEvidence, err = fs.GetBool("filter-zero-evidence")
		case "query-workers":
			cfg.Workers.Queries, err = fs.GetInt("query-workers")
		case "doc-workers":
			cfg.Workers.Documents, err = fs.GetInt("doc-workers")
		}
	})
	if err != nil {
		return apperrors.Newf(apperrors.ErrConfiguration, "reading flags: %v", err)
	}
	return nil
}
