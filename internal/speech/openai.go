package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

// OpenAI "pcm" responses are 24 kHz mono signed 16-bit little-endian.
var openAIFormat = audio.Format{SampleRate: 24000, Channels: 1}

var openAIVoices = map[models.Voice]openai.SpeechVoice{
	models.VoiceKore:   openai.VoiceNova,
	models.VoicePuck:   openai.VoiceEcho,
	models.VoiceCharon: openai.VoiceOnyx,
	models.VoiceFenrir: openai.VoiceFable,
	models.VoiceZephyr: openai.VoiceShimmer,
}

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // default: "https://api.openai.com/v1"
	Model    string // default: "gpt-4o-mini-tts"
	MaxChars int    // default: 4096, the API's input limit
}

// OpenAI synthesizes speech with the OpenAI audio API. It has no multi-speaker
// mode, so dialogue requests are read with the primary voice.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.MaxChars == 0 || cfg.MaxChars > 4096 {
		cfg.MaxChars = 4096
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), cfg: cfg}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*Result, error) {
	voice, ok := openAIVoices[req.Voice]
	if !ok {
		voice = openai.VoiceAlloy
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.cfg.Model),
		Input:          truncateRunes(req.Text, o.cfg.MaxChars),
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}

	return &Result{
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		Format:      openAIFormat,
	}, nil
}
