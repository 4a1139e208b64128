package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/audiobook/internal/extract"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/metrics"
	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/internal/queue"
	"github.com/nikhilbhutani/audiobook/internal/speech"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

type stubSynth struct{ err error }

func (s *stubSynth) Name() string { return "stub" }

func (s *stubSynth) Synthesize(context.Context, speech.Request) (*speech.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &speech.Result{AudioBase64: base64.StdEncoding.EncodeToString(make([]byte, 480)), Format: audio.DefaultFormat}, nil
}

type stubExtractor struct{}

func (stubExtractor) Name() string { return "stub" }

func (stubExtractor) Extract(context.Context, extract.Document) (string, error) { return "", nil }

type recordingQueue struct{ ids []uuid.UUID }

func (q *recordingQueue) EnqueueSynthesis(_ context.Context, id uuid.UUID, _ string) error {
	q.ids = append(q.ids, id)
	return nil
}

func setup(t *testing.T, synth *stubSynth) (*job.Service, *SynthesisWorker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := job.NewService(
		job.NewMemoryStore(),
		stubExtractor{},
		synth,
		handle.NewMemoryRegistry(time.Hour, nil),
		metrics.New(),
		logger,
		job.Options{SynthesisTimeout: time.Second},
	).WithQueue(&recordingQueue{})
	return svc, NewSynthesisWorker(svc, logger)
}

func task(t *testing.T, jobID, owner string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.SynthesizePayload{JobID: jobID, OwnerID: owner})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return asynq.NewTask(queue.TypeSynthesize, data)
}

func TestProcessTask(t *testing.T) {
	synth := &stubSynth{}
	svc, w := setup(t, synth)
	ctx := context.Background()

	j, _ := svc.Create(ctx, "owner", job.CreateRequest{Text: "hello"})
	if _, err := svc.Generate(ctx, "owner", j.ID); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := w.ProcessTask(ctx, task(t, j.ID.String(), "owner")); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}

	got, _ := svc.Get(ctx, "owner", j.ID)
	if got.Status != models.JobStatusCompleted || got.AudioHandle == "" {
		t.Errorf("expected completed job with audio, got %s / %q", got.Status, got.AudioHandle)
	}

	// A duplicate delivery finds the job no longer synthesizing.
	if err := w.ProcessTask(ctx, task(t, j.ID.String(), "owner")); err != nil {
		t.Errorf("duplicate task must be skipped, got %v", err)
	}
}

func TestProcessTaskFailureRecorded(t *testing.T) {
	synth := &stubSynth{err: errors.New("upstream down")}
	svc, w := setup(t, synth)
	ctx := context.Background()

	j, _ := svc.Create(ctx, "owner", job.CreateRequest{Text: "hello"})
	svc.Generate(ctx, "owner", j.ID)

	if err := w.ProcessTask(ctx, task(t, j.ID.String(), "owner")); err != nil {
		t.Fatalf("recorded failures must not be retried, got %v", err)
	}
	got, _ := svc.Get(ctx, "owner", j.ID)
	if got.Status != models.JobStatusError || got.Error != "failed to generate audio" {
		t.Errorf("unexpected job state %s / %q", got.Status, got.Error)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	_, w := setup(t, &stubSynth{})
	ctx := context.Background()

	tests := []struct {
		name string
		task *asynq.Task
	}{
		{"not json", asynq.NewTask(queue.TypeSynthesize, []byte("{"))},
		{"bad uuid", task(t, "not-a-uuid", "owner")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.ProcessTask(ctx, tt.task)
			if !errors.Is(err, asynq.SkipRetry) {
				t.Errorf("expected SkipRetry, got %v", err)
			}
		})
	}

	if err := w.ProcessTask(ctx, task(t, uuid.NewString(), "owner")); err != nil {
		t.Errorf("unknown job must be skipped, got %v", err)
	}
}
