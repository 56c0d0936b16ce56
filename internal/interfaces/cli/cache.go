package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/bootstrap"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis hot cache of analyses",
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Remove every cached analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalysisCache(cmd, func(c *redis.AnalysisCache) error {
				n, err := c.Flush(cmd.Context())
				if err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("removed %d cached analyses", n))
				return nil
			})
		},
	}

	invalidate := &cobra.Command{
		Use:   "invalidate URL|FINGERPRINT",
		Short: "Remove one cached analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp := resolveFingerprint(args[0])
			return withAnalysisCache(cmd, func(c *redis.AnalysisCache) error {
				if err := c.Invalidate(cmd.Context(), fp); err != nil {
					return err
				}
				PrintSuccess(cmd, "invalidated "+fp)
				return nil
			})
		},
	}

	cmd.AddCommand(flush, invalidate)
	return cmd
}

func withAnalysisCache(cmd *cobra.Command, fn func(*redis.AnalysisCache) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	if !cfg.Redis.Enabled {
		return errors.InvalidParam("redis is not enabled in the configuration")
	}
	client, err := bootstrap.OpenRedis(cfg.Redis, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	cache := redis.NewRedisCache(client, cliCtx.Logger, redis.WithPrefix(cfg.Redis.KeyPrefix))
	return fn(redis.NewAnalysisCache(cache, cfg.Cache.HotTTL, cliCtx.Logger))
}

// resolveFingerprint accepts a product URL or an existing fingerprint.
func resolveFingerprint(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return domain.Fingerprint(arg)
	}
	return arg
}
