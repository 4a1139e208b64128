package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/models"
)

type VoiceHandler struct {
	jobs *job.Service
}

func NewVoiceHandler(jobs *job.Service) *VoiceHandler {
	return &VoiceHandler{jobs: jobs}
}

func (h *VoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": models.Voices})
}

// Preview returns a short WAVE sample of the voice.
func (h *VoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	voice, err := models.ParseVoice(chi.URLParam(r, "voice"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	blob, err := h.jobs.Preview(r.Context(), voice)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeAudio(w, blob, false)
}
