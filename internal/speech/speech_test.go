package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nikhilbhutani/audiobook/internal/gemini"
	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

func geminiServer(t *testing.T, respond string, capture *gemini.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const audioResponse = `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"AAD/fw=="}}]}}]}`

func TestGeminiSingleVoice(t *testing.T) {
	var got gemini.Request
	srv := geminiServer(t, audioResponse, &got)
	g := NewGemini(gemini.NewClient("k", srv.URL), GeminiConfig{MaxChars: 10})

	res, err := g.Synthesize(context.Background(), Request{
		Text:  strings.Repeat("ж", 50),
		Voice: models.VoiceCharon,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if res.AudioBase64 != "AAD/fw==" {
		t.Errorf("payload must be passed through untouched, got %q", res.AudioBase64)
	}
	if res.Format != audio.DefaultFormat {
		t.Errorf("unexpected format %+v", res.Format)
	}

	sc := got.GenerationConfig.SpeechConfig
	if sc.VoiceConfig == nil || sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Charon" {
		t.Fatalf("expected single voice config, got %+v", sc)
	}
	if sc.MultiSpeakerVoiceConfig != nil {
		t.Error("single voice request must not carry speakers")
	}
	prompt := got.Contents[0].Parts[0].Text
	if strings.Count(prompt, "ж") != 10 {
		t.Errorf("expected text truncated to 10 runes, prompt = %q", prompt)
	}
	if got.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Errorf("expected AUDIO modality, got %v", got.GenerationConfig.ResponseModalities)
	}
}

func TestGeminiDialogue(t *testing.T) {
	var got gemini.Request
	srv := geminiServer(t, audioResponse, &got)
	g := NewGemini(gemini.NewClient("k", srv.URL), GeminiConfig{MaxChars: 100, MaxDialogueChars: 5})

	_, err := g.Synthesize(context.Background(), Request{
		Text:           "abcdefghij",
		Voice:          models.VoicePuck,
		SecondaryVoice: models.VoiceKore,
		Dialogue:       true,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	ms := got.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig
	if ms == nil || len(ms.SpeakerVoiceConfigs) != 2 {
		t.Fatalf("expected two speakers, got %+v", got.GenerationConfig.SpeechConfig)
	}
	if ms.SpeakerVoiceConfigs[0].Speaker != "Narrator" || ms.SpeakerVoiceConfigs[0].VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Errorf("unexpected narrator %+v", ms.SpeakerVoiceConfigs[0])
	}
	if ms.SpeakerVoiceConfigs[1].Speaker != "Character" || ms.SpeakerVoiceConfigs[1].VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("unexpected character %+v", ms.SpeakerVoiceConfigs[1])
	}
	prompt := got.Contents[0].Parts[0].Text
	if !strings.HasSuffix(prompt, "abcde") || strings.Contains(prompt, "abcdef") {
		t.Errorf("expected dialogue text truncated to 5 runes, prompt = %q", prompt)
	}
}

func TestGeminiNoAudio(t *testing.T) {
	srv := geminiServer(t, `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`, nil)
	g := NewGemini(gemini.NewClient("k", srv.URL), GeminiConfig{})

	_, err := g.Synthesize(context.Background(), Request{Text: "hi", Voice: models.VoicePuck})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestFormatFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want audio.Format
	}{
		{"audio/L16;codec=pcm;rate=24000", audio.Format{SampleRate: 24000, Channels: 1}},
		{"audio/L16;rate=16000", audio.Format{SampleRate: 16000, Channels: 1}},
		{"audio/L16;rate=44100;channels=2", audio.Format{SampleRate: 44100, Channels: 2}},
		{"audio/L16", audio.DefaultFormat},
		{"", audio.DefaultFormat},
		{"audio/L16;rate=abc", audio.DefaultFormat},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := formatFromMime(tt.mime); got != tt.want {
				t.Errorf("formatFromMime(%q) = %+v, want %+v", tt.mime, got, tt.want)
			}
		})
	}
}

func TestOpenAI(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(pcm)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	res, err := o.Synthesize(context.Background(), Request{Text: "hello", Voice: models.VoiceCharon, Dialogue: true})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if gotPath != "/v1/audio/speech" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody["voice"] != "onyx" || gotBody["response_format"] != "pcm" {
		t.Errorf("unexpected request body %v", gotBody)
	}
	if res.AudioBase64 != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("unexpected payload %q", res.AudioBase64)
	}

	blob, err := audio.Transcode(res.AudioBase64, res.Format)
	if err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}
	if blob.Size() != audio.HeaderSize+len(pcm) {
		t.Errorf("expected %d bytes, got %d", audio.HeaderSize+len(pcm), blob.Size())
	}
}

func TestLocalPiper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncat > /dev/null\nprintf 'AB'\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	l := NewLocal(LocalConfig{PiperBinPath: script, ModelPath: "voice.onnx", SampleRate: 16000})
	res, err := l.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.AudioBase64 != base64.StdEncoding.EncodeToString([]byte("AB")) {
		t.Errorf("unexpected payload %q", res.AudioBase64)
	}
	if res.Format.SampleRate != 16000 || res.Format.Channels != 1 {
		t.Errorf("unexpected format %+v", res.Format)
	}

	if _, err := NewLocal(LocalConfig{PiperBinPath: script}).Synthesize(context.Background(), Request{Text: "x"}); err == nil {
		t.Error("expected error without a model path")
	}
}

type stubSynth struct {
	req Request
	res *Result
	err error
}

func (s *stubSynth) Name() string { return "stub" }

func (s *stubSynth) Synthesize(_ context.Context, req Request) (*Result, error) {
	s.req = req
	return s.res, s.err
}

func TestPreview(t *testing.T) {
	s := &stubSynth{res: &Result{AudioBase64: "AAAAAA==", Format: audio.DefaultFormat}}

	blob, err := Preview(context.Background(), s, models.VoiceZephyr)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !strings.Contains(s.req.Text, "Zephyr") || s.req.Voice != models.VoiceZephyr || s.req.Dialogue {
		t.Errorf("unexpected preview request %+v", s.req)
	}
	if blob.ContentType != audio.ContentTypeWAV || blob.Size() != audio.HeaderSize+4 {
		t.Errorf("unexpected blob: %s, %d bytes", blob.ContentType, blob.Size())
	}

	s.err = ErrNoAudio
	if _, err := Preview(context.Background(), s, models.VoiceZephyr); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"привет", 2, "пр"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
