package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/fincontexta/internal/app"
	"github.com/markdave123-py/fincontexta/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	config.NewLogger(cfg.LogLevel)

	// Background runs outlive the signal so in-flight attempts can record their outcome.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	application, err := app.NewApp(ctx, runCtx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Server.Start() }()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			slog.Error("server error", "err", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}

	cancelRuns()
	application.Close()
	slog.Info("fincontexta stopped")
}
