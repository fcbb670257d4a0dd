package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/memory"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/segment"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

func (a *app) newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <documents-file>",
		Short: "Index a documents file into the configured persistent backend",
		Long: `index analyzes every document of a lines or jsonl file and stores the
documents with their term statistics in a segment file, a SQLite database or a
PostgreSQL database, selected by --backend. Document ids are assigned in file
order starting at 0. When redis.enabled is set, cached ranked lists are
flushed afterwards so entries for the previous contents do not wait out
their TTL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			analyzer, err := analysis.New(cfg.Collection.Analyzer)
			if err != nil {
				return err
			}
			idx, err := memory.Load(args[0], cfg.Collection.Format, analyzer)
			if err != nil {
				return apperrors.Newf(apperrors.ErrIndexUnavailable, "loading documents: %v", err)
			}
			snap := idx.Snapshot()
			ctx := cmd.Context()

			switch cfg.Collection.Backend {
			case config.BackendSegment:
				if err := segment.Write(cfg.Collection.Path, snap); err != nil {
					return err
				}
			case config.BackendSQLite, config.BackendPostgres:
				store, err := openStore(ctx, cfg, cfg.Collection.Backend)
				if err != nil {
					return apperrors.Newf(apperrors.ErrIndexUnavailable, "%v", err)
				}
				defer store.Close()
				if err := store.Import(ctx, snap); err != nil {
					return err
				}
			default:
				return apperrors.Newf(apperrors.ErrConfiguration,
					"backend %q cannot be written; choose segment, sqlite or postgres", cfg.Collection.Backend)
			}
			slog.Info("collection indexed",
				"backend", cfg.Collection.Backend,
				"documents", len(snap.Documents),
				"terms", len(snap.Terms),
				"tokens", idx.TokenCount(),
			)
			if cfg.Redis.Enabled {
				if _, err := flushRankedLists(ctx, cfg.Redis); err != nil {
					slog.Warn("ranked-list cache not flushed", "error", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents, %d terms into %s\n",
				len(snap.Documents), len(snap.Terms), cfg.Collection.Backend)
			return nil
		},
	}
	cmd.Flags().String("format", "", "document format (lines, jsonl)")
	return cmd
}
