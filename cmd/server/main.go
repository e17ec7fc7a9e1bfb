// Command server boots epv: it loads configuration, wires the
// repositories, the pipeline engine, and the IMAP ingester into an App,
// and serves the authenticated HTTP surface until it receives a signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrowgate/epv/config"
	"github.com/harrowgate/epv/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application := app.New(cfg)
	if err := application.Initialize(os.Getenv("EPV_MACROS_FILE")); err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Start(ctx)
}
