package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/audiobook/internal/models"
)

const jobColumns = `id, owner_id, text, file_name, voice, secondary_voice, dialogue, status,
	audio_handle, audio_url, audio_bytes, duration_seconds, audio_expires_at, archive_path, error,
	created_at, updated_at`

// PostgresStore keeps jobs in the audiobook_jobs table so the API and the
// worker share state.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, j *models.Job) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audiobook_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		j.ID, j.OwnerID, j.Text, j.FileName, j.Voice, j.SecondaryVoice, j.Dialogue, j.Status,
		j.AudioHandle, j.AudioURL, j.AudioBytes, j.DurationSeconds, j.AudioExpiresAt, j.ArchivePath, j.Error,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Job, error) {
	rows, _ := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM audiobook_jobs WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	j, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Job])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string, limit, offset int) ([]models.Job, error) {
	rows, _ := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM audiobook_jobs WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	jobs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Job])
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) Save(ctx context.Context, j *models.Job) error {
	err := s.db.QueryRow(ctx,
		`UPDATE audiobook_jobs SET
			text = $3, file_name = $4, voice = $5, secondary_voice = $6, dialogue = $7, status = $8,
			audio_handle = $9, audio_url = $10, audio_bytes = $11, duration_seconds = $12,
			audio_expires_at = $13, archive_path = $14, error = $15, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING updated_at`,
		j.ID, j.OwnerID, j.Text, j.FileName, j.Voice, j.SecondaryVoice, j.Dialogue, j.Status,
		j.AudioHandle, j.AudioURL, j.AudioBytes, j.DurationSeconds, j.AudioExpiresAt, j.ArchivePath, j.Error,
	).Scan(&j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM audiobook_jobs WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context, ownerID string, id uuid.UUID, status string, staleBefore time.Time) (*models.Job, error) {
	rows, _ := s.db.Query(ctx,
		`UPDATE audiobook_jobs SET status = $3, error = '', updated_at = now()
		 WHERE id = $1 AND owner_id = $2 AND (status NOT IN ($4, $5) OR updated_at < $6)
		 RETURNING `+jobColumns,
		id, ownerID, status, models.JobStatusExtracting, models.JobStatusSynthesizing, staleBefore,
	)
	j, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Job])
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("begin job: %w", err)
	}

	// Nothing updated: either the job is missing or it is busy.
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return nil, ErrBusy
}
