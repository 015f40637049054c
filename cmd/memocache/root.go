package main

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-memocache/pkg/backend"
	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/illmade-knight/go-memocache/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cfgKey struct{}

// newRootCmd builds the memocache command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "memocache",
		Short:        "Resolve keys through a command and cache the results",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			level := cfg.LogLevel
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level = "debug"
			}
			logger := config.NewLogger(level, cmd.ErrOrStderr()).With().Str("component", "cli").Logger()

			ctx := logger.WithContext(cmd.Context())
			cmd.SetContext(context.WithValue(ctx, cfgKey{}, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("backend", "", "cache backend (snapshot, gcs, sqlite, redis, firestore, memory)")
	cmd.PersistentFlags().String("path", "", "cache file for the snapshot and sqlite backends")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.AddCommand(newResolveCmd(), newLookupCmd(), newPutCmd(), newServeCmd())
	return cmd
}

// loadConfig reads the config file and lays the command-line flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if backendName, _ := cmd.Flags().GetString("backend"); backendName != "" {
		cfg.Cache.Backend = backendName
	}
	if cachePath, _ := cmd.Flags().GetString("path"); cachePath != "" {
		cfg.Cache.Path = cachePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKey{}).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// openStore opens the configured store with string keys and values.
func openStore(ctx context.Context) (cache.Store[string, string], *config.Config, error) {
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := backend.Open[string, string](ctx, cfg, *zerolog.Ctx(ctx))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
