package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"threatwatch/internal/app"
	"threatwatch/internal/config"
	"threatwatch/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("cannot start application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
