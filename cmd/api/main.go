package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/infra/app"
	"github.com/KVLNK12305/Akira/internal/infra/config"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "akira:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg, err := logger.New(logger.Options{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: cfg.App.Name})
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("startup failed", zap.Error(err))
		return err
	}
	return application.Run(ctx)
}
