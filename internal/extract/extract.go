// Package extract turns uploaded documents into narration-ready text.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/audiobook/internal/cache"
	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/gemini"
	"github.com/nikhilbhutani/audiobook/internal/llm"
	"github.com/nikhilbhutani/audiobook/pkg/textextract"
)

// ErrNoText is returned when a document yields no readable text.
var ErrNoText = errors.New("extract: no text found in document")

// Document is an uploaded file.
type Document struct {
	Name     string
	MimeType string
	Data     []byte
}

// Type resolves the document's mime type. Uploads without one are treated as
// PDF unless the file name says otherwise.
func (d Document) Type() string {
	if mt := textextract.DetectType(d.Name, d.MimeType); mt != "" {
		return mt
	}
	return textextract.MimePDF
}

type Extractor interface {
	Extract(ctx context.Context, doc Document) (string, error)
	Name() string
}

// New builds the extractor named in cfg.Extract.Backend. When c is non-nil
// results are cached for cfg.Extract.CacheTTL.
func New(cfg *config.Config, client *gemini.Client, gw *llm.Gateway, c *cache.Cache) (Extractor, error) {
	var e Extractor
	switch cfg.Extract.Backend {
	case "gemini":
		e = NewGemini(client, cfg.Extract.Model)
	case "local":
		e = NewLocal()
	case "llm":
		e = NewCleanup(NewLocal(), gw)
	default:
		return nil, fmt.Errorf("unknown extract backend %q", cfg.Extract.Backend)
	}
	if c != nil && cfg.Extract.CacheTTL > 0 {
		e = NewCached(e, c, cfg.Extract.CacheTTL)
	}
	return e, nil
}
