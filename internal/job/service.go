// Package job runs audiobook jobs through extraction, synthesis and
// transcoding, and keeps each job's current audio handle.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/audiobook/internal/extract"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/metrics"
	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/internal/speech"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrBusy      = errors.New("job is busy")
	ErrEmptyText = errors.New("job has no text to narrate")
	ErrStale     = errors.New("job is not awaiting synthesis")

	// Failures of the remote collaborators. Their messages are shown to users.
	ErrExtraction = errors.New("failed to extract text from file")
	ErrSynthesis  = errors.New("failed to generate audio")
)

// Enqueuer hands a synthesis run to a background worker.
type Enqueuer interface {
	EnqueueSynthesis(ctx context.Context, jobID uuid.UUID, ownerID string) error
}

// Archiver keeps a durable copy of finished audio and returns its location.
type Archiver interface {
	Archive(ctx context.Context, job *models.Job, blob *audio.Blob) (string, error)
	Remove(ctx context.Context, job *models.Job) error
}

type Options struct {
	ExtractTimeout   time.Duration
	SynthesisTimeout time.Duration
	// StaleAfter is how long a job may stay busy before its run is presumed
	// lost, e.g. to a worker crash. Zero never gives up on a run.
	StaleAfter time.Duration
}

type Service struct {
	store     Store
	extractor extract.Extractor
	synth     speech.Synthesizer
	handles   handle.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options

	enqueuer Enqueuer
	archiver Archiver
}

func NewService(
	store Store,
	extractor extract.Extractor,
	synth speech.Synthesizer,
	handles handle.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Service {
	return &Service{
		store:     store,
		extractor: extractor,
		synth:     synth,
		handles:   handles,
		metrics:   m,
		logger:    logger.With("component", "job"),
		opts:      opts,
	}
}

// WithQueue makes Generate enqueue synthesis instead of running it inline.
func (s *Service) WithQueue(e Enqueuer) *Service {
	s.enqueuer = e
	return s
}

func (s *Service) WithArchive(a Archiver) *Service {
	s.archiver = a
	return s
}

// Async reports whether Generate hands work to a queue.
func (s *Service) Async() bool { return s.enqueuer != nil }

type CreateRequest struct {
	Text           string        `json:"text"`
	Voice          *models.Voice `json:"voice,omitempty"`
	SecondaryVoice *models.Voice `json:"secondary_voice,omitempty"`
	Dialogue       bool          `json:"dialogue"`
}

type UpdateRequest struct {
	Text           *string       `json:"text,omitempty"`
	Voice          *models.Voice `json:"voice,omitempty"`
	SecondaryVoice *models.Voice `json:"secondary_voice,omitempty"`
	Dialogue       *bool         `json:"dialogue,omitempty"`
}

func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*models.Job, error) {
	j := models.NewJob(ownerID)
	j.Text = req.Text
	j.Dialogue = req.Dialogue
	if err := applyVoices(j, req.Voice, req.SecondaryVoice); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	j, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.present(j)
	return j, nil
}

func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]models.Job, error) {
	jobs, err := s.store.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		s.present(&jobs[i])
	}
	return jobs, nil
}

// Update edits text and voice settings. The current audio is kept until the
// next generation.
func (s *Service) Update(ctx context.Context, ownerID string, id uuid.UUID, req UpdateRequest) (*models.Job, error) {
	j, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if j.Busy() {
		return nil, ErrBusy
	}

	if req.Text != nil {
		j.Text = *req.Text
	}
	if req.Dialogue != nil {
		j.Dialogue = *req.Dialogue
	}
	if err := applyVoices(j, req.Voice, req.SecondaryVoice); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Delete removes the job, revokes its audio handle and drops any archived
// copy.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	j, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.handles.Release(ctx, id.String()); err != nil {
		s.logger.Warn("release audio handle", "job_id", id, "error", err)
	}
	if s.archiver != nil && j.ArchivePath != "" {
		if err := s.archiver.Remove(ctx, j); err != nil {
			s.logger.Warn("remove archived audio", "job_id", id, "error", err)
		}
	}
	return nil
}

// ReleaseAudio revokes the job's current audio and returns it to idle.
func (s *Service) ReleaseAudio(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	j, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if j.Busy() {
		return nil, ErrBusy
	}
	if err := s.handles.Release(ctx, id.String()); err != nil {
		return nil, fmt.Errorf("release audio: %w", err)
	}
	j.ClearAudio()
	if j.Status == models.JobStatusCompleted {
		j.Status = models.JobStatusIdle
	}
	if err := s.store.Save(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// RevokeHandle revokes an audio handle held by one of the owner's jobs.
// Handles of other owners are reported as handle.ErrNotFound. Revoking a
// job's current audio returns the job to idle.
func (s *Service) RevokeHandle(ctx context.Context, ownerID, handleID string) error {
	h, err := s.handles.Lookup(ctx, handleID)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(h.Scope)
	if err != nil {
		return handle.ErrNotFound
	}

	j, err := s.Get(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return handle.ErrNotFound
	}
	if err != nil {
		return err
	}

	if j.AudioHandle != handleID || j.Busy() {
		return s.handles.Revoke(ctx, handleID)
	}
	_, err = s.ReleaseAudio(ctx, ownerID, id)
	return err
}

// Extract replaces the job's text with the text of doc. On failure the job
// is left in the error state and ErrExtraction is returned.
func (s *Service) Extract(ctx context.Context, ownerID string, id uuid.UUID, doc extract.Document) (*models.Job, error) {
	j, err := s.store.Begin(ctx, ownerID, id, models.JobStatusExtracting, s.staleBefore())
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("job_id", id, "file", doc.Name)
	logger.Info("extracting text", "bytes", len(doc.Data), "mime_type", doc.Type())

	callCtx, cancel := withTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	started := time.Now()
	text, err := s.extractor.Extract(callCtx, doc)
	s.metrics.ObserveExtraction(s.extractor.Name(), started, err)
	if err != nil {
		logger.Error("extraction failed", "error", err)
		return s.fail(ctx, j, ErrExtraction)
	}

	j.Text = text
	j.FileName = doc.Name
	j.Status = models.JobStatusIdle
	if err := s.store.Save(context.WithoutCancel(ctx), j); err != nil {
		return nil, err
	}
	logger.Info("text extracted", "chars", len([]rune(text)))
	return j, nil
}

// Generate starts synthesis for the job. With a queue configured the job is
// returned in the synthesizing state; otherwise synthesis runs inline.
func (s *Service) Generate(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	j, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(j.Text) == "" {
		return nil, ErrEmptyText
	}

	j, err = s.store.Begin(ctx, ownerID, id, models.JobStatusSynthesizing, s.staleBefore())
	if err != nil {
		return nil, err
	}

	if s.enqueuer == nil {
		return s.synthesize(ctx, j)
	}

	if err := s.enqueuer.EnqueueSynthesis(ctx, id, ownerID); err != nil {
		s.logger.Error("enqueue synthesis", "job_id", id, "error", err)
		return s.fail(ctx, j, ErrSynthesis)
	}
	s.metrics.JobsEnqueued.Inc()
	return j, nil
}

// RunSynthesis performs a queued synthesis. Jobs that were deleted or are no
// longer synthesizing yield ErrNotFound or ErrStale.
func (s *Service) RunSynthesis(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	j, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if j.Status != models.JobStatusSynthesizing {
		return nil, ErrStale
	}
	return s.synthesize(ctx, j)
}

func (s *Service) synthesize(ctx context.Context, j *models.Job) (*models.Job, error) {
	logger := s.logger.With("job_id", j.ID, "voice", j.Voice, "dialogue", j.Dialogue)
	logger.Info("synthesizing", "chars", len([]rune(j.Text)))

	callCtx, cancel := withTimeout(ctx, s.opts.SynthesisTimeout)
	defer cancel()

	started := time.Now()
	res, err := s.synth.Synthesize(callCtx, speech.Request{
		Text:           j.Text,
		Voice:          j.Voice,
		SecondaryVoice: j.SecondaryVoice,
		Dialogue:       j.Dialogue,
	})
	s.metrics.ObserveSynthesis(s.synth.Name(), started, err)
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		return s.fail(ctx, j, ErrSynthesis)
	}

	blob, duration, err := s.transcode(res)
	if err != nil {
		logger.Error("transcode failed", "error", err)
		return s.fail(ctx, j, ErrSynthesis)
	}

	// Detached so a cancelled request cannot leave a handle without a job record.
	ctx = context.WithoutCancel(ctx)

	h, err := s.handles.Acquire(ctx, j.ID.String(), blob)
	if err != nil {
		logger.Error("store audio", "error", err)
		return s.fail(ctx, j, ErrSynthesis)
	}

	j.AudioHandle = h.ID
	j.AudioURL = h.URL
	j.AudioBytes = int64(blob.Size())
	j.DurationSeconds = duration.Seconds()
	j.AudioExpiresAt = nil
	if !h.ExpiresAt.IsZero() {
		expires := h.ExpiresAt.UTC()
		j.AudioExpiresAt = &expires
	}
	j.ArchivePath = ""
	j.Status = models.JobStatusCompleted

	if s.archiver != nil {
		path, err := s.archiver.Archive(ctx, j, blob)
		if err != nil {
			logger.Warn("archive audio", "error", err)
		} else {
			j.ArchivePath = path
		}
	}

	if err := s.store.Save(ctx, j); err != nil {
		// The job vanished mid-flight; drop the orphaned handle.
		_ = s.handles.Release(ctx, j.ID.String())
		return nil, err
	}

	logger.Info("audio ready", "handle", h.ID, "bytes", blob.Size(), "duration", duration)
	return j, nil
}

func (s *Service) transcode(res *speech.Result) (*audio.Blob, time.Duration, error) {
	blob, err := audio.Transcode(res.AudioBase64, res.Format)
	var duration time.Duration
	if err == nil {
		var hdr *audio.Header
		if hdr, err = audio.ReadHeader(blob.Data); err == nil {
			duration = hdr.Duration()
		}
	}
	s.metrics.ObserveTranscode(blob.Size(), duration, err)
	if err != nil {
		return nil, 0, err
	}
	return blob, duration, nil
}

// Preview renders a short greeting in voice.
func (s *Service) Preview(ctx context.Context, voice models.Voice) (*audio.Blob, error) {
	callCtx, cancel := withTimeout(ctx, s.opts.SynthesisTimeout)
	defer cancel()

	started := time.Now()
	blob, err := speech.Preview(callCtx, s.synth, voice)
	s.metrics.ObserveSynthesis(s.synth.Name(), started, err)
	if err != nil {
		s.logger.Error("voice preview failed", "voice", voice, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return blob, nil
}

// staleBefore is the cutoff before which a busy job counts as abandoned.
func (s *Service) staleBefore() time.Time {
	if s.opts.StaleAfter <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-s.opts.StaleAfter)
}

// present adjusts a stored job to what it means now. An abandoned run reads
// as failed and audio past its handle TTL is dropped. Nothing is written
// back; the next save persists it.
func (s *Service) present(j *models.Job) {
	if j.Busy() && j.UpdatedAt.Before(s.staleBefore()) {
		cause := ErrSynthesis
		if j.Status == models.JobStatusExtracting {
			cause = ErrExtraction
		}
		j.ClearAudio()
		j.Status = models.JobStatusError
		j.Error = cause.Error()
	}
	if j.AudioExpired(time.Now()) {
		j.ClearAudio()
		if j.Status == models.JobStatusCompleted {
			j.Status = models.JobStatusIdle
		}
	}
}

// fail records cause on the job and drops any audio it still referenced, so
// a failed job never serves a stale result.
func (s *Service) fail(ctx context.Context, j *models.Job, cause error) (*models.Job, error) {
	ctx = context.WithoutCancel(ctx)

	if err := s.handles.Release(ctx, j.ID.String()); err != nil {
		s.logger.Warn("release audio handle", "job_id", j.ID, "error", err)
	}
	j.ClearAudio()
	j.Status = models.JobStatusError
	j.Error = cause.Error()
	if err := s.store.Save(ctx, j); err != nil {
		s.logger.Error("record job failure", "job_id", j.ID, "error", err)
	}
	return j, cause
}

func applyVoices(j *models.Job, primary, secondary *models.Voice) error {
	if primary != nil {
		v, err := models.ParseVoice(string(*primary))
		if err != nil {
			return err
		}
		j.Voice = v
	}
	if secondary != nil {
		v, err := models.ParseVoice(string(*secondary))
		if err != nil {
			return err
		}
		j.SecondaryVoice = v
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
