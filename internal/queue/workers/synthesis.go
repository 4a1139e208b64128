package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/queue"
)

type SynthesisWorker struct {
	jobs   *job.Service
	logger *slog.Logger
}

func NewSynthesisWorker(jobs *job.Service, logger *slog.Logger) *SynthesisWorker {
	return &SynthesisWorker{jobs: jobs, logger: logger.With("component", "synthesis-worker")}
}

func (w *SynthesisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.SynthesizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("parse job ID: %v: %w", err, asynq.SkipRetry)
	}

	logger := w.logger.With("job_id", jobID)
	logger.Info("processing synthesis task")

	j, err := w.jobs.RunSynthesis(ctx, payload.OwnerID, jobID)
	switch {
	case errors.Is(err, job.ErrNotFound), errors.Is(err, job.ErrStale):
		logger.Info("skipping synthesis task", "reason", err)
		return nil
	case errors.Is(err, job.ErrSynthesis):
		// Already recorded on the job.
		logger.Warn("synthesis task failed", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("run synthesis: %w", err)
	}

	logger.Info("synthesis task done", "handle", j.AudioHandle, "bytes", j.AudioBytes)
	return nil
}
