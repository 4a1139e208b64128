// Package app assembles the audiobook service from configuration. Both the
// API server and the worker start from Build.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/audiobook/internal/cache"
	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/database"
	"github.com/nikhilbhutani/audiobook/internal/extract"
	"github.com/nikhilbhutani/audiobook/internal/gemini"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/llm"
	"github.com/nikhilbhutani/audiobook/internal/metrics"
	"github.com/nikhilbhutani/audiobook/internal/queue"
	"github.com/nikhilbhutani/audiobook/internal/speech"
	"github.com/nikhilbhutani/audiobook/internal/storage"
	"github.com/nikhilbhutani/audiobook/migrations"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	DB      *pgxpool.Pool // nil when jobs are kept in memory
	Redis   *redis.Client // nil when Redis is unreachable and not required
	Handles handle.Registry
	Jobs    *job.Service
	Queue   *queue.Client // nil unless QUEUE_ASYNC is set

	memHandles *handle.MemoryRegistry
}

func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	store, err := a.jobStore(ctx)
	if err != nil {
		return err
	}

	urls := handle.PathURL(cfg.Server.PublicBaseURL)
	switch cfg.Handles.Backend {
	case "redis":
		if a.Redis == nil {
			return fmt.Errorf("HANDLE_BACKEND=redis requires a reachable redis")
		}
		a.Handles = handle.NewRedisRegistry(a.Redis, cfg.Handles.TTL, urls)
	default:
		a.memHandles = handle.NewMemoryRegistry(cfg.Handles.TTL, urls)
		a.Handles = a.memHandles
	}

	client := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL)
	gateway := llm.NewGateway(cfg.LLM, a.Logger)

	var extractCache *cache.Cache
	if a.Redis != nil {
		extractCache = cache.NewCache(a.Redis, "audiobook:extract:")
	}
	extractor, err := extract.New(cfg, client, gateway, extractCache)
	if err != nil {
		return err
	}
	synth, err := speech.New(cfg, client)
	if err != nil {
		return err
	}

	a.Jobs = job.NewService(store, extractor, synth, a.Handles, a.Metrics, a.Logger, job.Options{
		ExtractTimeout:   cfg.Extract.Timeout,
		SynthesisTimeout: cfg.Speech.Timeout,
		StaleAfter:       cfg.Jobs.StaleAfter,
	})

	if cfg.Queue.Async {
		a.Queue = queue.NewClient(cfg.Redis, cfg.Speech.Timeout)
		a.Jobs.WithQueue(a.Queue)
	}
	if cfg.Storage.ArchiveEnabled {
		a.Jobs.WithArchive(storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket))
	}

	a.Logger.Info("service assembled",
		"extract_backend", extractor.Name(),
		"speech_backend", synth.Name(),
		"handle_backend", cfg.Handles.Backend,
		"postgres", a.DB != nil,
		"async", cfg.Queue.Async,
		"archive", cfg.Storage.ArchiveEnabled,
	)
	return nil
}

func (a *App) connectRedis(ctx context.Context) error {
	cfg := a.Config
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		if cfg.Handles.Backend == "redis" || cfg.Queue.Async {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Logger.Warn("redis unavailable, running without extraction cache", "error", err)
		return nil
	}
	a.Redis = rdb
	return nil
}

func (a *App) jobStore(ctx context.Context) (job.Store, error) {
	cfg := a.Config.Database
	if cfg.URL == "" {
		a.Logger.Warn("DATABASE_URL not set, keeping jobs in memory")
		return job.NewMemoryStore(), nil
	}

	db, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db

	var schema fs.FS = migrations.FS
	if cfg.MigrationsPath != "" {
		schema = os.DirFS(cfg.MigrationsPath)
	}
	if err := database.RunMigrations(ctx, db, schema, a.Logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return job.NewPostgresStore(db), nil
}

// RunJanitor sweeps expired in-memory handles until ctx is done. It is a
// no-op for Redis handles, which expire on their own.
func (a *App) RunJanitor(ctx context.Context) {
	if a.memHandles == nil {
		return
	}
	every := a.Config.Handles.TTL / 4
	if every <= 0 {
		return
	}
	a.memHandles.RunJanitor(ctx, every)
}

func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn("close queue client", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
