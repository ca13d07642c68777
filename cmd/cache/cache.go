package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/fingerprint"
)

// Command creates the cache command group. The cache only accelerates
// dedup checks, so clearing it is always safe.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local fingerprint cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached ledger address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget [fingerprint]",
		Short: "Remove one cached ledger address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := fingerprint.Parse(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Cache.Invalidate(cmd.Context(), fp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of cached entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.DB.Cache().Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	return cmd
}
