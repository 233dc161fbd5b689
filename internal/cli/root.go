// Package cli implements tilecachectl, the operator tool for inspecting and
// cleaning tiers held in Redis.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tilecache/internal/platform/config"
	"tilecache/internal/platform/logger"
	redisclient "tilecache/internal/platform/redis"
	"tilecache/internal/tilecache/service"
	redistier "tilecache/internal/tilecache/store/redis"
	"tilecache/internal/tilecache/tier"
	"tilecache/pkg/domain"
)

// Opener connects to the tiers a command works on. An empty session leaves
// the ephemeral tier unset.
type Opener func(ctx context.Context, redisURL string, session domain.SessionID, hasSession bool) (tier.Pair, func(), error)

type cliEnv struct {
	RedisURL string `env:"TILECACHE_REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type globalOptions struct {
	redisURL string
	session  string
	debug    bool
	open     Opener
}

// NewRootCmd creates the root command wired to Redis.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithOpener(openRedis)
}

// NewRootCmdWithOpener creates the root command with an injected tier opener
// for testability.
func NewRootCmdWithOpener(open Opener) *cobra.Command {
	var envDefaults cliEnv
	_ = config.ParseEnv(&envDefaults)

	opts := &globalOptions{open: open}
	cmd := &cobra.Command{
		Use:           "tilecachectl",
		Short:         "Inspect and clean tilecache tiers",
		Long:          "tilecachectl works directly on the Redis namespaces behind the tilecache server: the shared durable tier and, with --session, one session's ephemeral tier.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Show stored preferences and one session's cached sections
  tilecachectl inspect --session 6f1c1f9e-7d3a-4b8e-9a51-1d2c3b4a5e6f

  # Keep the 10 freshest sections younger than 30 minutes
  tilecachectl cleanup --session 6f1c1f9e-7d3a-4b8e-9a51-1d2c3b4a5e6f --max-age-minutes 30 --keep 10

  # Remove everything except consent records
  tilecachectl purge --yes`,
	}

	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", envDefaults.RedisURL, "Redis URL (env TILECACHE_REDIS_URL)")
	cmd.PersistentFlags().StringVar(&opts.session, "session", "", "session id whose ephemeral tier to include")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.AddCommand(newInspectCmd(opts), newCleanupCmd(opts), newPurgeCmd(opts))

	return cmd
}

// cleaner opens the tiers and builds a Cleaner over them.
func (o *globalOptions) cleaner(cmd *cobra.Command, preserve func(string) bool) (*service.Cleaner, func(), error) {
	var (
		sid        domain.SessionID
		hasSession bool
	)
	if o.session != "" {
		parsed, err := domain.ParseSessionID(o.session)
		if err != nil {
			return nil, nil, fmt.Errorf("--session: %w", err)
		}
		sid, hasSession = parsed, true
	}
	tiers, closeFn, err := o.open(cmd.Context(), o.redisURL, sid, hasSession)
	if err != nil {
		return nil, nil, err
	}
	return &service.Cleaner{
		Tiers:    tiers,
		Preserve: preserve,
		Logger:   o.logger(cmd),
	}, closeFn, nil
}

func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if o.debug {
		level = "debug"
	}
	return logger.NewWithWriter(cmd.ErrOrStderr(), level)
}

func openRedis(ctx context.Context, redisURL string, session domain.SessionID, hasSession bool) (tier.Pair, func(), error) {
	client, err := redisclient.New(ctx, config.RedisConfig{URL: redisURL})
	if err != nil {
		return tier.Pair{}, nil, err
	}
	if client == nil {
		return tier.Pair{}, nil, fmt.Errorf("no redis url configured")
	}
	pair := tier.Pair{Durable: redistier.NewRedisTier(client.Client, redistier.DurableNamespace)}
	if hasSession {
		pair.Ephemeral = redistier.NewRedisTier(client.Client, redistier.EphemeralNamespace(session.String()))
	}
	return pair, func() { _ = client.Close() }, nil
}
