package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/audiobook/internal/models"
)

// Store persists jobs. Every lookup is scoped by owner; a job owned by
// someone else is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	// Begin atomically moves a job that is not busy into status and clears
	// its error. Busy jobs last updated after staleBefore yield ErrBusy; a
	// zero staleBefore treats every busy job as live.
	Begin(ctx context.Context, ownerID string, id uuid.UUID, status string, staleBefore time.Time) (*models.Job, error)
}

type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]models.Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string, limit, offset int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Job
	for _, j := range s.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })

	if offset >= len(out) {
		return []models.Job{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok || cur.OwnerID != job.OwnerID {
		return ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Begin(_ context.Context, ownerID string, id uuid.UUID, status string, staleBefore time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if j.Busy() && !j.UpdatedAt.Before(staleBefore) {
		return nil, ErrBusy
	}
	j.Status = status
	j.Error = ""
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
	return &j, nil
}
