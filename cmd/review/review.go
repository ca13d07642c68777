package review

import (
	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/cmd/printer"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/review"
)

// Command creates the inspection command group for the review workflow.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspection",
		Short: "Review stored inspections",
	}

	cmd.AddCommand(
		decisionCommand(ctx, review.ActionApprove),
		decisionCommand(ctx, review.ActionReject),
		linkCommand(ctx),
		listCommand(ctx),
	)
	return cmd
}

func withReview(ctx *app.Context, fn func(svc *review.Service) error) error {
	store, err := ctx.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(review.NewService(store.DB.Inspections(), store.DB.Lots(), ctx.Log.Module("review"), nil))
}

func decisionCommand(ctx *app.Context, action review.Action) *cobra.Command {
	target, _ := action.Target()
	return &cobra.Command{
		Use:   string(action) + " [inspection-id]",
		Short: "Move a PENDING inspection to " + string(target),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReview(ctx, func(svc *review.Service) error {
				rec, err := svc.Decide(cmd.Context(), args[0], action)
				if err != nil {
					return err
				}
				return printer.JSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func linkCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "link [inspection-id] [lot-id]",
		Short: "Link an inspection to a registered lot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReview(ctx, func(svc *review.Service) error {
				rec, err := svc.Link(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printer.JSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func listCommand(ctx *app.Context) *cobra.Command {
	var status string
	var unlinked bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspections by review status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReview(ctx, func(svc *review.Service) error {
				var (
					recs []entities.InspectionRecord
					err  error
				)
				if unlinked {
					recs, err = svc.ListUnlinked(cmd.Context())
				} else {
					st, perr := entities.ParseReviewStatus(status)
					if perr != nil {
						return perr
					}
					recs, err = svc.ListByStatus(cmd.Context(), st)
				}
				if err != nil {
					return err
				}
				return printer.JSON(cmd.OutOrStdout(), recs)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(entities.StatusPending), "PENDING, APPROVED or REJECTED")
	cmd.Flags().BoolVar(&unlinked, "unlinked", false, "List inspections without a lot instead")

	return cmd
}
