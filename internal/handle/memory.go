package handle

import (
	"context"
	"sync"
	"time"

	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

type memoryEntry struct {
	handle Handle
	blob   *audio.Blob
}

// MemoryRegistry keeps blobs in process memory. Expired entries are dropped
// lazily on Open and in bulk by Sweep.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	scopes  map[string]string
	ttl     time.Duration
	url     URLBuilder
	now     func() time.Time
}

func NewMemoryRegistry(ttl time.Duration, url URLBuilder) *MemoryRegistry {
	if url == nil {
		url = PathURL("")
	}
	return &MemoryRegistry{
		entries: make(map[string]*memoryEntry),
		scopes:  make(map[string]string),
		ttl:     ttl,
		url:     url,
		now:     time.Now,
	}
}

func (r *MemoryRegistry) Acquire(ctx context.Context, scope string, blob *audio.Blob) (*Handle, error) {
	now := r.now()
	h := Handle{
		ID:          newID(),
		Scope:       scope,
		ContentType: blob.ContentType,
		Size:        blob.Size(),
		CreatedAt:   now,
	}
	h.URL = r.url(h.ID)
	if r.ttl > 0 {
		h.ExpiresAt = now.Add(r.ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.scopes[scope]; ok {
		delete(r.entries, prev)
	}
	r.entries[h.ID] = &memoryEntry{handle: h, blob: blob}
	r.scopes[scope] = h.ID

	return &h, nil
}

func (r *MemoryRegistry) Open(ctx context.Context, id string) (*audio.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.expired(e) {
		r.removeLocked(id)
		return nil, ErrNotFound
	}
	return e.blob, nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, id string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || r.expired(e) {
		return nil, ErrNotFound
	}
	h := e.handle
	return &h, nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Release(ctx context.Context, scope string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.scopes[scope]; ok {
		r.removeLocked(id)
	}
	return nil
}

// Sweep drops every expired handle and returns how many were removed.
func (r *MemoryRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		if r.expired(e) {
			r.removeLocked(id)
			n++
		}
	}
	return n
}

// Len reports the number of live handles, expired ones included until swept.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RunJanitor sweeps on every tick until ctx is done.
func (r *MemoryRegistry) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *MemoryRegistry) expired(e *memoryEntry) bool {
	return !e.handle.ExpiresAt.IsZero() && !r.now().Before(e.handle.ExpiresAt)
}

func (r *MemoryRegistry) removeLocked(id string) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.entries, id)
	if r.scopes[e.handle.Scope] == id {
		delete(r.scopes, e.handle.Scope)
	}
}
