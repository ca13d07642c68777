package lot

import (
	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/cmd/printer"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/review"
)

// Command creates the lot command group.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lot",
		Short: "Register medicine lots and list their inspections",
	}
	cmd.AddCommand(createCommand(ctx), inspectionsCommand(ctx))
	return cmd
}

// withReview runs fn against a review service over the local store.
func withReview(ctx *app.Context, fn func(svc *review.Service) error) error {
	store, err := ctx.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(review.NewService(store.DB.Inspections(), store.DB.Lots(), ctx.Log.Module("review"), nil))
}

func createCommand(ctx *app.Context) *cobra.Command {
	var lot entities.Lot

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a lot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReview(ctx, func(svc *review.Service) error {
				if err := svc.RegisterLot(cmd.Context(), &lot); err != nil {
					return err
				}
				return printer.JSON(cmd.OutOrStdout(), lot)
			})
		},
	}

	cmd.Flags().StringVar(&lot.LotNumber, "number", "", "Lot number printed on the packaging")
	cmd.Flags().StringVar(&lot.ProductName, "product", "", "Product name")
	cmd.Flags().StringVar(&lot.ProductCode, "code", "", "Product code")
	_ = cmd.MarkFlagRequired("number")

	return cmd
}

func inspectionsCommand(ctx *app.Context) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "inspections [lot-id]",
		Short: "List inspections linked to a lot (approved only unless --all)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReview(ctx, func(svc *review.Service) error {
				recs, err := svc.ListByLot(cmd.Context(), args[0], !all)
				if err != nil {
					return err
				}
				return printer.JSON(cmd.OutOrStdout(), recs)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include pending and rejected inspections")

	return cmd
}
