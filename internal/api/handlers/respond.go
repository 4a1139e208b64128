package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/audiobook/internal/extract"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to a status code. Failures that were
// recorded on a job are returned together with the job.
func writeServiceError(w http.ResponseWriter, err error, j *models.Job) {
	status, msg := errorStatus(err)
	if j != nil {
		writeJSON(w, status, map[string]interface{}{"error": msg, "job": j})
		return
	}
	writeError(w, status, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound, "job not found"
	case errors.Is(err, handle.ErrNotFound):
		return http.StatusNotFound, "audio not found or expired"
	case errors.Is(err, job.ErrBusy), errors.Is(err, job.ErrStale):
		return http.StatusConflict, err.Error()
	case errors.Is(err, job.ErrEmptyText), errors.Is(err, models.ErrUnknownVoice):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrInvalidFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, extract.ErrNoText):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, job.ErrExtraction):
		return http.StatusBadGateway, job.ErrExtraction.Error()
	case errors.Is(err, job.ErrSynthesis):
		return http.StatusBadGateway, job.ErrSynthesis.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeAudio sends blob inline, or as an attachment when download is set.
func writeAudio(w http.ResponseWriter, blob *audio.Blob, download bool) {
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(blob.Size()))
	w.Header().Set("Cache-Control", "private, no-store")
	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition+`; filename="`+audio.DefaultFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
