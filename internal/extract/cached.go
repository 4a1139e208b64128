package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/audiobook/internal/cache"
)

// Cached memoizes extraction results by content hash. Cache errors are
// logged and never fail an extraction.
type Cached struct {
	next   Extractor
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(next Extractor, c *cache.Cache, ttl time.Duration) *Cached {
	return &Cached{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: slog.Default().With("component", "extract-cache"),
	}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Extract(ctx context.Context, doc Document) (string, error) {
	key := cacheKey(c.next.Name(), doc)

	var text string
	err := c.cache.Get(ctx, key, &text)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("extract cache read failed", "error", err)
	}

	text, err = c.next.Extract(ctx, doc)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, text, c.ttl); err != nil {
		c.logger.Warn("extract cache write failed", "error", err)
	}
	return text, nil
}

func cacheKey(backend string, doc Document) string {
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write([]byte(doc.Type()))
	h.Write([]byte{0})
	h.Write(doc.Data)
	return hex.EncodeToString(h.Sum(nil))
}
