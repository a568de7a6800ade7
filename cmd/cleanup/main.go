// Command cleanup deletes expired refresh tokens once and exits. It is meant
// to run from cron or a Kubernetes CronJob.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utafrali/authservice/internal/app"
	"github.com/utafrali/authservice/internal/config"
	"github.com/utafrali/authservice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName+"-cleanup", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, 2*time.Minute)
	defer timeout()

	n, err := app.CleanupExpiredTokens(ctx, cfg, log)
	if err != nil {
		log.Error("cleanup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("cleanup finished", slog.Int64("deleted", n))
}
