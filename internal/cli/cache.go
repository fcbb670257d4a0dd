package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/redis"
)

func (a *app) newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis ranked-list cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Delete every cached ranked list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return apperrors.New(apperrors.ErrConfiguration, "redis.enabled is false; there is no cache to flush")
			}
			n, err := flushRankedLists(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed %d ranked lists\n", n)
			return nil
		},
	})
	return cmd
}

// flushRankedLists connects to Redis just long enough to drop the cached
// ranked lists.
func flushRankedLists(ctx context.Context, cfg config.RedisConfig) (int64, error) {
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	n, err := runner.InvalidateRankedLists(ctx, client)
	if err != nil {
		return n, fmt.Errorf("flushing ranked lists: %w", err)
	}
	slog.Info("ranked-list cache flushed", "component", "cli", "addr", cfg.Addr, "deleted", n)
	return n, nil
}
