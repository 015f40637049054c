package main

import (
	"context"
	"time"

	"github.com/illmade-knight/go-memocache/pkg/memo"
	"github.com/illmade-knight/go-memocache/pkg/microservice"
	"github.com/illmade-knight/go-memocache/pkg/source"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolve requests over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := *zerolog.Ctx(ctx)

			store, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			src, err := source.NewCommandSource(&cfg.Source, logger)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer src.Close()

			if port == "" {
				port = cfg.HTTPPort
			}

			m := memo.New(store, src.Producer(), logger)
			return memo.Scope(m, func(m *memo.Memoizer[string, string]) error {
				server := microservice.NewBaseServer(logger, port)
				microservice.RegisterResolverRoutes(server.Mux(), m, logger)
				if err := server.Start(); err != nil {
					return err
				}

				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen address, e.g. :8080 (defaults to http_port)")
	return cmd
}
