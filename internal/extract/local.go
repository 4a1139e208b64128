package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/audiobook/internal/llm"
	"github.com/nikhilbhutani/audiobook/pkg/textextract"
)

// Local parses PDF, DOCX and plain text in process.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Name() string { return "local" }

func (l *Local) Extract(_ context.Context, doc Document) (string, error) {
	res, err := textextract.Extract(doc.Data, doc.Type())
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", doc.Name, err)
	}
	text := strings.TrimSpace(res.Content)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

const cleanupPrompt = "You prepare text for an audiobook narrator. Remove running headers, footers, " +
	"page numbers, tables of contents and other metadata from the user's text. Keep the narrative " +
	"unchanged and in its original language. Reply with the cleaned text only."

// Cleanup extracts locally and then asks an LLM to strip layout noise.
type Cleanup struct {
	base    Extractor
	gateway *llm.Gateway
}

func NewCleanup(base Extractor, gw *llm.Gateway) *Cleanup {
	return &Cleanup{base: base, gateway: gw}
}

func (c *Cleanup) Name() string { return "llm" }

func (c *Cleanup) Extract(ctx context.Context, doc Document) (string, error) {
	raw, err := c.base.Extract(ctx, doc)
	if err != nil {
		return "", err
	}

	resp, err := c.gateway.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: cleanupPrompt},
			{Role: "user", Content: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("cleanup text: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
