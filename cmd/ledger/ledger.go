package ledger

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/cmd/printer"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/fingerprint"
)

// Command creates the ledger command group for read-only ledger queries.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Query verification records on the ledger",
	}

	cmd.AddCommand(listCommand(ctx), getCommand(ctx), lookupCommand(ctx))
	return cmd
}

func listCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all verification records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Ledger.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			return printer.JSON(cmd.OutOrStdout(), records)
		},
	}
}

func getCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "get [index]",
		Short: "Print the record at an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("index must be a non-negative integer: %w", err)
			}

			a, err := ctx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Ledger.GetByIndex(cmd.Context(), index)
			if err != nil {
				return err
			}
			return printer.JSON(cmd.OutOrStdout(), rec)
		},
	}
}

func lookupCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [fingerprint]",
		Short: "Find the record for an image fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := fingerprint.Parse(args[0])
			if err != nil {
				return err
			}

			a, err := ctx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, found, err := a.Ledger.Lookup(cmd.Context(), fp)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("fingerprint %s is not recorded", fp.Short())
			}
			return printer.JSON(cmd.OutOrStdout(), rec)
		},
	}
}
