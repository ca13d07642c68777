// Package cmd wires the rxledger command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rxledger/rxledger/cmd/cache"
	"github.com/rxledger/rxledger/cmd/config"
	"github.com/rxledger/rxledger/cmd/ledger"
	"github.com/rxledger/rxledger/cmd/lot"
	"github.com/rxledger/rxledger/cmd/review"
	"github.com/rxledger/rxledger/cmd/serve"
	"github.com/rxledger/rxledger/cmd/verify"
	"github.com/rxledger/rxledger/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rxledger",
		Short:         "Medicine packaging verification with a tamper-evident ledger",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	setupFlags(rootCmd, ctx)

	rootCmd.AddCommand(
		serve.Command(ctx),
		verify.Command(ctx),
		ledger.Command(ctx),
		cache.Command(ctx),
		lot.Command(ctx),
		review.Command(ctx),
		config.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Init()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) {
	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.Debug, "debug", "d", false, "Enable debug output")
}
