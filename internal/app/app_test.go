package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
)

func load(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildInMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := load(t, map[string]string{"REDIS_ADDR": mr.Addr()})

	a, err := Build(context.Background(), cfg, discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	if a.DB != nil || a.Queue != nil || a.Redis == nil {
		t.Fatalf("unexpected wiring: db=%v queue=%v redis=%v", a.DB != nil, a.Queue != nil, a.Redis != nil)
	}
	if _, ok := a.Handles.(*handle.MemoryRegistry); !ok {
		t.Fatalf("expected memory handles, got %T", a.Handles)
	}
	if a.Jobs.Async() {
		t.Fatal("expected inline synthesis")
	}

	ctx := context.Background()
	j, err := a.Jobs.Create(ctx, "owner", job.CreateRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := a.Jobs.Get(ctx, "owner", j.ID); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestBuildRedisHandles(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := load(t, map[string]string{"REDIS_ADDR": mr.Addr(), "HANDLE_BACKEND": "redis"})

	a, err := Build(context.Background(), cfg, discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	if _, ok := a.Handles.(*handle.RedisRegistry); !ok {
		t.Fatalf("expected redis handles, got %T", a.Handles)
	}
}

func TestBuildRequiresRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := load(t, map[string]string{"REDIS_ADDR": addr, "HANDLE_BACKEND": "redis"})
	if _, err := Build(context.Background(), cfg, discard()); err == nil {
		t.Fatal("expected error when redis handles cannot connect")
	}

	// Without a Redis requirement the service still starts.
	cfg = load(t, map[string]string{"REDIS_ADDR": addr, "HANDLE_BACKEND": "memory"})
	a, err := Build(context.Background(), cfg, discard())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()
	if a.Redis != nil {
		t.Error("expected no redis client")
	}
}

func TestBuildUnknownBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := load(t, map[string]string{"REDIS_ADDR": mr.Addr(), "SPEECH_BACKEND": "espeak"})
	if _, err := Build(context.Background(), cfg, discard()); err == nil {
		t.Fatal("expected unknown speech backend to fail")
	}
}
