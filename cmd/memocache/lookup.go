package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNotCached = errors.New("key is not cached")

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup KEY",
		Short: "Print the cached value for KEY without resolving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			value, ok, err := store.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", errNotCached, args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}
