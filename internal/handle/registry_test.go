package handle

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

func testBlob(t *testing.T, frames int) *audio.Blob {
	t.Helper()
	buf, err := audio.DecodePCM(make([]byte, frames*2), audio.DefaultFormat)
	if err != nil {
		t.Fatalf("DecodePCM() error = %v", err)
	}
	blob, err := audio.EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	return blob
}

// registries returns each implementation under a common name, with a
// function that moves its clock past the TTL.
func registries(t *testing.T, ttl time.Duration) map[string]struct {
	reg     Registry
	advance func(time.Duration)
} {
	t.Helper()

	mem := NewMemoryRegistry(ttl, PathURL("https://audio.test"))
	clock := time.Now()
	mem.now = func() time.Time { return clock }

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]struct {
		reg     Registry
		advance func(time.Duration)
	}{
		"memory": {mem, func(d time.Duration) { clock = clock.Add(d) }},
		"redis":  {NewRedisRegistry(client, ttl, PathURL("https://audio.test")), mr.FastForward},
	}
}

func TestAcquireOpen(t *testing.T) {
	for name, tc := range registries(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			blob := testBlob(t, 100)

			h, err := tc.reg.Acquire(ctx, "job-1", blob)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if h.Size != blob.Size() || h.ContentType != "audio/wav" || h.Scope != "job-1" {
				t.Errorf("unexpected handle: %+v", h)
			}
			if !strings.HasPrefix(h.URL, "https://audio.test/api/v1/audio/") || !strings.HasSuffix(h.URL, h.ID) {
				t.Errorf("unexpected url %q", h.URL)
			}

			got, err := tc.reg.Open(ctx, h.ID)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got.Data, blob.Data) || got.ContentType != blob.ContentType {
				t.Error("opened blob differs from the acquired one")
			}
		})
	}
}

func TestAcquireRevokesPrevious(t *testing.T) {
	for name, tc := range registries(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := tc.reg.Acquire(ctx, "job-1", testBlob(t, 10))
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			second, err := tc.reg.Acquire(ctx, "job-1", testBlob(t, 20))
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			other, err := tc.reg.Acquire(ctx, "job-2", testBlob(t, 30))
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}

			if first.ID == second.ID {
				t.Fatal("expected a fresh handle id")
			}
			if _, err := tc.reg.Open(ctx, first.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("superseded handle: expected ErrNotFound, got %v", err)
			}
			if _, err := tc.reg.Open(ctx, second.ID); err != nil {
				t.Errorf("current handle: %v", err)
			}
			if _, err := tc.reg.Open(ctx, other.ID); err != nil {
				t.Errorf("other scope must be untouched: %v", err)
			}
		})
	}
}

func TestRevokeAndRelease(t *testing.T) {
	for name, tc := range registries(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a, _ := tc.reg.Acquire(ctx, "job-a", testBlob(t, 10))
			b, _ := tc.reg.Acquire(ctx, "job-b", testBlob(t, 10))

			if err := tc.reg.Revoke(ctx, a.ID); err != nil {
				t.Fatalf("Revoke() error = %v", err)
			}
			if err := tc.reg.Revoke(ctx, a.ID); err != nil {
				t.Fatalf("second Revoke() must be a no-op, got %v", err)
			}
			if _, err := tc.reg.Open(ctx, a.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("revoked handle: expected ErrNotFound, got %v", err)
			}

			if err := tc.reg.Release(ctx, "job-b"); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if _, err := tc.reg.Open(ctx, b.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("released handle: expected ErrNotFound, got %v", err)
			}
			if err := tc.reg.Release(ctx, "job-unknown"); err != nil {
				t.Errorf("Release() of empty scope: %v", err)
			}
		})
	}
}

func TestHandleExpiry(t *testing.T) {
	for name, tc := range registries(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			h, err := tc.reg.Acquire(ctx, "job-1", testBlob(t, 10))
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if h.ExpiresAt.Sub(h.CreatedAt) != time.Minute {
				t.Errorf("expected 1m lifetime, got %v", h.ExpiresAt.Sub(h.CreatedAt))
			}

			tc.advance(2 * time.Minute)

			if _, err := tc.reg.Open(ctx, h.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expired handle: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestMemorySweep(t *testing.T) {
	reg := NewMemoryRegistry(time.Minute, nil)
	clock := time.Now()
	reg.now = func() time.Time { return clock }
	ctx := context.Background()

	for _, scope := range []string{"a", "b", "c"} {
		if _, err := reg.Acquire(ctx, scope, testBlob(t, 1)); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 live handles, got %d", reg.Len())
	}

	clock = clock.Add(time.Hour)
	if n := reg.Sweep(); n != 3 {
		t.Errorf("expected 3 swept, got %d", n)
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
}

func TestLookup(t *testing.T) {
	for name, tc := range registries(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			blob := testBlob(t, 10)

			h, err := tc.reg.Acquire(ctx, "job-1", blob)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}

			got, err := tc.reg.Lookup(ctx, h.ID)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got.Scope != "job-1" || got.URL != h.URL || got.Size != blob.Size() || got.ContentType != audio.ContentTypeWAV {
				t.Errorf("unexpected handle %+v", got)
			}
			if got.ExpiresAt.IsZero() {
				t.Error("expected an expiry time")
			}

			tc.advance(2 * time.Minute)
			if _, err := tc.reg.Lookup(ctx, h.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expired handle: expected ErrNotFound, got %v", err)
			}
			if _, err := tc.reg.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing handle: expected ErrNotFound, got %v", err)
			}
		})
	}
}
