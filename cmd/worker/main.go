package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/audiobook/internal/app"
	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/queue"
	"github.com/nikhilbhutani/audiobook/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	// The worker only makes sense against shared state.
	cfg.Queue.Async = true
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := queue.NewServer(cfg.Redis, cfg.Queue.Concurrency, logger)

	synthesis := workers.NewSynthesisWorker(a.Jobs, logger)
	srv.Register(queue.TypeSynthesize, asynq.HandlerFunc(synthesis.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency)
	if err := srv.Run(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
