package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/audiobook/internal/auth"
	"github.com/nikhilbhutani/audiobook/internal/extract"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/models"
)

const maxUploadBytes = 32 << 20

type JobHandler struct {
	jobs   *job.Service
	logger *slog.Logger
}

func NewJobHandler(jobs *job.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With("component", "jobs-api")}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	j, err := h.jobs.Create(r.Context(), auth.OwnerFromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	jobs, err := h.jobs.List(r.Context(), auth.OwnerFromContext(r.Context()), limit, offset)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	j, err := h.jobs.Get(r.Context(), auth.OwnerFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var req job.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	j, err := h.jobs.Update(r.Context(), auth.OwnerFromContext(r.Context()), id, req)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.jobs.Delete(r.Context(), auth.OwnerFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Upload extracts the text of a multipart "file" into the job.
func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	j, err := h.jobs.Extract(r.Context(), auth.OwnerFromContext(r.Context()), id, extract.Document{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		h.respondError(w, r, err, j)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// Generate runs synthesis inline (200) or hands it to the queue (202).
func (h *JobHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobs.Generate(r.Context(), auth.OwnerFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err, j)
		return
	}

	status := http.StatusOK
	if h.jobs.Async() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, j)
}

// ReleaseAudio drops the job's current audio.
func (h *JobHandler) ReleaseAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	j, err := h.jobs.ReleaseAudio(r.Context(), auth.OwnerFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JobHandler) respondError(w http.ResponseWriter, r *http.Request, err error, j *models.Job) {
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeServiceError(w, err, j)
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}
