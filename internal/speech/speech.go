package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/gemini"
	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

// ErrNoAudio is returned when a backend answers without an audio payload.
var ErrNoAudio = errors.New("speech: no audio in response")

// Request holds the parameters for one synthesis call.
type Request struct {
	Text           string       `json:"text"`
	Voice          models.Voice `json:"voice"`
	SecondaryVoice models.Voice `json:"secondary_voice,omitempty"`
	Dialogue       bool         `json:"dialogue"`
}

// Result is raw 16-bit PCM, base64 encoded, in the given format.
type Result struct {
	AudioBase64 string
	Format      audio.Format
}

// Synthesizer is the interface for text-to-speech backends.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// New picks the backend named in cfg.Speech.Backend.
func New(cfg *config.Config, client *gemini.Client) (Synthesizer, error) {
	switch cfg.Speech.Backend {
	case "gemini":
		return NewGemini(client, GeminiConfig{
			Model:            cfg.Speech.Model,
			MaxChars:         cfg.Speech.MaxChars,
			MaxDialogueChars: cfg.Speech.MaxDialogueChars,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:   cfg.LLM.OpenAIKey,
			Model:    cfg.Speech.OpenAIModel,
			MaxChars: cfg.Speech.MaxChars,
		}), nil
	case "local":
		return NewLocal(LocalConfig{
			PiperBinPath: cfg.Speech.PiperBinPath,
			ModelPath:    cfg.Speech.PiperModel,
			SampleRate:   cfg.Speech.PiperSampleRate,
		}), nil
	default:
		return nil, fmt.Errorf("unknown speech backend %q", cfg.Speech.Backend)
	}
}

// Preview synthesizes a short greeting in voice and returns it as a WAVE file.
func Preview(ctx context.Context, s Synthesizer, voice models.Voice) (*audio.Blob, error) {
	res, err := s.Synthesize(ctx, Request{
		Text:  fmt.Sprintf("Hello! I am the voice %s. How do I sound?", voice),
		Voice: voice,
	})
	if err != nil {
		return nil, err
	}
	return audio.Transcode(res.AudioBase64, res.Format)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	return string(r[:n])
}
