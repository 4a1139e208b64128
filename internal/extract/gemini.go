package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/audiobook/internal/gemini"
)

const extractionPrompt = "Extract all meaningful text from this document to produce an audiobook. " +
	"Remove headers, footers, page numbers and extra metadata. Keep only the main narrative text. " +
	"Keep the original language of the text."

// Gemini sends the file inline to a multimodal Gemini model.
type Gemini struct {
	client *gemini.Client
	model  string
}

func NewGemini(client *gemini.Client, model string) *Gemini {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &Gemini{client: client, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Extract(ctx context.Context, doc Document) (string, error) {
	resp, err := g.client.GenerateContent(ctx, g.model, gemini.Request{
		Contents: gemini.UserContent(
			gemini.Part{InlineData: &gemini.InlineData{
				MimeType: doc.Type(),
				Data:     base64.StdEncoding.EncodeToString(doc.Data),
			}},
			gemini.Part{Text: extractionPrompt},
		),
	})
	if err != nil {
		return "", fmt.Errorf("gemini extract: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
