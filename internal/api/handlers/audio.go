package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/audiobook/internal/auth"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/metrics"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

const maxTranscodeBytes = 64 << 20

// AudioHandler serves handle-backed audio and exposes the transcoder.
type AudioHandler struct {
	jobs    *job.Service
	handles handle.Registry
	metrics *metrics.Metrics
}

func NewAudioHandler(jobs *job.Service, handles handle.Registry, m *metrics.Metrics) *AudioHandler {
	return &AudioHandler{jobs: jobs, handles: handles, metrics: m}
}

// Get streams the blob behind a handle. ?download=1 asks for an attachment.
func (h *AudioHandler) Get(w http.ResponseWriter, r *http.Request) {
	blob, err := h.handles.Open(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	download := r.URL.Query().Get("download")
	writeAudio(w, blob, download == "1" || download == "true")
}

// Revoke drops a handle owned by the caller. The job holding it goes back to
// idle.
func (h *AudioHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	err := h.jobs.RevokeHandle(r.Context(), auth.OwnerFromContext(r.Context()), chi.URLParam(r, "handle"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transcodeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
}

// Transcode wraps a base64 PCM payload in a WAVE container. Omitted format
// fields default to 24 kHz mono.
func (h *AudioHandler) Transcode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranscodeBytes)

	var req transcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f := audio.DefaultFormat
	if req.SampleRate != 0 {
		f.SampleRate = req.SampleRate
	}
	if req.Channels != 0 {
		f.Channels = req.Channels
	}

	blob, err := audio.Transcode(req.AudioBase64, f)
	var hdr *audio.Header
	if err == nil {
		hdr, err = audio.ReadHeader(blob.Data)
	}
	if err != nil {
		h.metrics.ObserveTranscode(0, 0, err)
		writeServiceError(w, err, nil)
		return
	}
	h.metrics.ObserveTranscode(blob.Size(), hdr.Duration(), nil)

	download := r.URL.Query().Get("download")
	writeAudio(w, blob, download == "1" || download == "true")
}
