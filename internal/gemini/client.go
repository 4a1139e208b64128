// Package gemini is a minimal REST client for the Gemini generateContent
// endpoint, covering the document extraction and speech generation calls.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

var ErrEmptyResponse = errors.New("gemini returned no candidates")

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig             *VoiceConfig             `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *MultiSpeakerVoiceConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type MultiSpeakerVoiceConfig struct {
	SpeakerVoiceConfigs []SpeakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type SpeakerVoiceConfig struct {
	Speaker     string      `json:"speaker"`
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// Voice builds a prebuilt voice config for name.
func Voice(name string) VoiceConfig {
	return VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: name}}
}

// UserContent wraps parts into a single user turn.
func UserContent(parts ...Part) []Content {
	return []Content{{Role: "user", Parts: parts}}
}

// Response keeps the raw body; accessors read the fields they need.
type Response struct {
	raw []byte
}

// Text concatenates the text parts of the first candidate.
func (r *Response) Text() string {
	var sb strings.Builder
	gjson.GetBytes(r.raw, "candidates.0.content.parts.#.text").ForEach(func(_, v gjson.Result) bool {
		sb.WriteString(v.String())
		return true
	})
	return sb.String()
}

// InlineData returns the first inline payload of the first candidate as sent
// by the API, base64 text included.
func (r *Response) InlineData() (InlineData, bool) {
	var out InlineData
	found := false
	gjson.GetBytes(r.raw, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		data := part.Get("inlineData.data")
		if !data.Exists() {
			return true
		}
		out = InlineData{MimeType: part.Get("inlineData.mimeType").String(), Data: data.String()}
		found = true
		return false
	})
	return out, found
}

// FinishReason reports why the first candidate stopped, if given.
func (r *Response) FinishReason() string {
	return gjson.GetBytes(r.raw, "candidates.0.finishReason").String()
}

func (c *Client) GenerateContent(ctx context.Context, model string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = string(raw)
		}
		return nil, fmt.Errorf("gemini %s failed (status %d): %s", model, resp.StatusCode, msg)
	}

	if !gjson.GetBytes(raw, "candidates.0").Exists() {
		if reason := gjson.GetBytes(raw, "promptFeedback.blockReason").String(); reason != "" {
			return nil, fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, reason)
		}
		return nil, ErrEmptyResponse
	}

	return &Response{raw: raw}, nil
}
