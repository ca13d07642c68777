package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/internal/api"
	v1 "github.com/rxledger/rxledger/internal/api/v1"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/logger"
)

// Command creates the serve command, which runs the HTTP API until SIGINT
// or SIGTERM.
func Command(ctx *app.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the verification, ledger, review and metrics endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := ctx.Open(sigCtx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := api.ConfigFromSettings(a.Settings.WebServer)
			if listen != "" {
				cfg.Listen = listen
			}

			srv, err := api.New(cfg, v1.Deps{
				Submitter: a.Recorder,
				Ledger:    a.Ledger,
				Detector:  a.Detector,
				Reviewer:  a.Review,
				Logger:    a.Log.Module("api"),
			}, api.WithLogger(a.Log.Module("api")), api.WithMetrics(a.Metrics))
			if err != nil {
				return err
			}
			srv.Start()

			select {
			case <-sigCtx.Done():
				a.Log.Info("shutdown signal received")
			case err := <-srv.Errors():
				return err
			}

			// the signal context is already cancelled
			if err := srv.Shutdown(context.WithoutCancel(sigCtx)); err != nil {
				a.Log.Error("graceful shutdown failed", logger.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override webserver.listen (host:port)")

	return cmd
}
