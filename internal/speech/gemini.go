package speech

import (
	"context"
	"fmt"
	"mime"
	"strconv"

	"github.com/nikhilbhutani/audiobook/internal/gemini"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

const (
	narratorSpeaker  = "Narrator"
	characterSpeaker = "Character"
)

type GeminiConfig struct {
	Model            string // default: "gemini-2.5-flash-preview-tts"
	MaxChars         int    // default: 5000
	MaxDialogueChars int    // default: 4000
}

// Gemini synthesizes speech with the Gemini TTS models. Dialogue requests use
// the multi-speaker config with the primary voice as narrator.
type Gemini struct {
	client *gemini.Client
	cfg    GeminiConfig
}

func NewGemini(client *gemini.Client, cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-preview-tts"
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 5000
	}
	if cfg.MaxDialogueChars == 0 {
		cfg.MaxDialogueChars = 4000
	}
	return &Gemini{client: client, cfg: cfg}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Synthesize(ctx context.Context, req Request) (*Result, error) {
	speech := &gemini.SpeechConfig{}
	var prompt string

	if req.Dialogue {
		secondary := req.SecondaryVoice
		if secondary == "" {
			secondary = req.Voice
		}
		prompt = "Voice the following text as a dialogue. Use Narrator for the narration and Character for the dialogue: " +
			truncateRunes(req.Text, g.cfg.MaxDialogueChars)
		speech.MultiSpeakerVoiceConfig = &gemini.MultiSpeakerVoiceConfig{
			SpeakerVoiceConfigs: []gemini.SpeakerVoiceConfig{
				{Speaker: narratorSpeaker, VoiceConfig: gemini.Voice(string(req.Voice))},
				{Speaker: characterSpeaker, VoiceConfig: gemini.Voice(string(secondary))},
			},
		}
	} else {
		prompt = "Read the following text naturally and expressively: " + truncateRunes(req.Text, g.cfg.MaxChars)
		voice := gemini.Voice(string(req.Voice))
		speech.VoiceConfig = &voice
	}

	resp, err := g.client.GenerateContent(ctx, g.cfg.Model, gemini.Request{
		Contents: gemini.UserContent(gemini.Part{Text: prompt}),
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speech,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini speech: %w", err)
	}

	data, ok := resp.InlineData()
	if !ok || data.Data == "" {
		return nil, ErrNoAudio
	}

	return &Result{
		AudioBase64: data.Data,
		Format:      formatFromMime(data.MimeType),
	}, nil
}

// formatFromMime reads the rate parameter of an "audio/L16;rate=24000" type,
// falling back to the default format.
func formatFromMime(mimeType string) audio.Format {
	f := audio.DefaultFormat
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return f
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		f.SampleRate = rate
	}
	if ch, err := strconv.Atoi(params["channels"]); err == nil && ch > 0 {
		f.Channels = ch
	}
	return f
}
