package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/audiobook/internal/api"
	"github.com/nikhilbhutani/audiobook/internal/api/middleware"
	"github.com/nikhilbhutani/audiobook/internal/app"
	"github.com/nikhilbhutani/audiobook/internal/auth"
	"github.com/nikhilbhutani/audiobook/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	authn, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		slog.Error("invalid auth config", "error", err)
		os.Exit(1)
	}
	if !authn.Enabled() {
		slog.Warn("authentication disabled, all jobs belong to one owner", "owner", auth.AnonymousOwner)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx, time.Minute)
	go a.RunJanitor(ctx)

	router := api.NewRouter(api.Deps{
		Config:  cfg,
		Jobs:    a.Jobs,
		Handles: a.Handles,
		Auth:    authn,
		Limiter: limiter,
		Metrics: a.Metrics,
		Logger:  logger,
		DB:      a.DB,
		Redis:   a.Redis,
	})

	// Inline synthesis can take minutes, so the write timeout follows the
	// speech timeout.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.Speech.Timeout + cfg.Extract.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
