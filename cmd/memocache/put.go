package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Store VALUE for KEY and flush it durably",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}

			if err := store.Insert(ctx, args[0], args[1]); err != nil {
				return errors.Join(err, store.Close())
			}
			if err := store.Flush(ctx, true); err != nil {
				return errors.Join(err, store.Close())
			}
			return store.Close()
		},
	}
}
