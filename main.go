package main

import (
	"context"
	"os"

	"github.com/rxledger/rxledger/cmd"
	"github.com/rxledger/rxledger/internal/app"
	"github.com/rxledger/rxledger/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   = "dev"
	buildDate = ""
	commit    = ""
)

func main() {
	ctx := app.NewContext(buildinfo.NewContext(version, buildDate, commit))
	rootCmd := cmd.RootCommand(ctx)

	err := rootCmd.ExecuteContext(context.Background())
	_ = ctx.Close()
	if err != nil {
		os.Exit(1)
	}
}
