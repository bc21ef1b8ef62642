// Command ragline is the knowledge base CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/ragline/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// API keys may come from a .env file in the working directory.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, buildServices, version)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
