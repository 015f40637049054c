package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/illmade-knight/go-memocache/pkg/config"
	"github.com/illmade-knight/go-memocache/pkg/enrichment"
	"github.com/illmade-knight/go-memocache/pkg/memo"
	"github.com/illmade-knight/go-memocache/pkg/source"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type resolvedLine struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func newResolveCmd() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "resolve [KEY...]",
		Short: "Resolve keys, reading them from stdin when none are given",
		Long: "Resolve each key through the configured source command, reusing cached answers.\n" +
			"Keys that fail to resolve are logged and skipped. Results are printed as JSON lines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := *zerolog.Ctx(ctx)

			keys := args
			if len(keys) == 0 {
				var err error
				if keys, err = readKeys(cmd); err != nil {
					return err
				}
			}

			// --no-cache never touches the configured store, so a broken cache cannot block it.
			var store cache.Store[string, string]
			var cfg *config.Config
			var err error
			if noCache {
				cfg, err = configFrom(ctx)
				store = cache.NewNullStore[string, string]()
			} else {
				store, cfg, err = openStore(ctx)
			}
			if err != nil {
				return err
			}

			src, err := source.NewCommandSource(&cfg.Source, logger)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer src.Close()

			m := memo.New(store, src.Producer(), logger)
			return memo.Scope(m, func(m *memo.Memoizer[string, string]) error {
				enricher, err := enrichment.NewEnricherFunc(enrichment.NewPolicyFetcher(m), nonEmptyKey, logger)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, r := range enrichment.EnrichAll(ctx, keys, enricher, logger) {
					if err := enc.Encode(resolvedLine{Key: r.Item, Value: r.Data}); err != nil {
						return fmt.Errorf("failed to write result: %w", err)
					}
				}
				return ctx.Err()
			})
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the cache entirely")
	return cmd
}

func nonEmptyKey(key string) (string, bool) {
	return key, key != ""
}

// readKeys returns the non-blank lines of stdin.
func readKeys(cmd *cobra.Command) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if key := strings.TrimSpace(scanner.Text()); key != "" {
			keys = append(keys, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keys: %w", err)
	}
	return keys, nil
}
