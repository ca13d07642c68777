package verify

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/cmd/printer"
	v1 "github.com/rxledger/rxledger/internal/api/v1"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/recording"
)

// Command creates the verify command. It submits one image file and prints
// the outcome as JSON.
func Command(ctx *app.Context) *cobra.Command {
	var lotID, submittedBy string

	cmd := &cobra.Command{
		Use:   "verify [image]",
		Short: "Verify a packaging image and record it on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			a, err := ctx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := recording.SubmitRequest{Image: img}
			if lotID != "" {
				if _, err := a.Review.GetLot(cmd.Context(), lotID); err != nil {
					return err
				}
				req.LotID = &lotID
			}
			if submittedBy != "" {
				req.SubmittedBy = &submittedBy
			}

			out, err := a.Recorder.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printer.JSON(cmd.OutOrStdout(), v1.NewOutcomeResponse(out)); err != nil {
				return err
			}
			if out.Kind == recording.KindRecordingFailed {
				return fmt.Errorf("ledger write failed, inspections kept for retry: %w", out.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lotID, "lot", "", "Link the inspections to this lot id")
	cmd.Flags().StringVar(&submittedBy, "user", "", "Submitter recorded on the inspections")

	return cmd
}
