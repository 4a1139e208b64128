package models

import (
	"time"

	"github.com/google/uuid"
)

type Job struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	OwnerID         string     `json:"owner_id" db:"owner_id"`
	Text            string     `json:"text" db:"text"`
	FileName        string     `json:"file_name,omitempty" db:"file_name"`
	Voice           Voice      `json:"voice" db:"voice"`
	SecondaryVoice  Voice      `json:"secondary_voice" db:"secondary_voice"`
	Dialogue        bool       `json:"dialogue" db:"dialogue"`
	Status          string     `json:"status" db:"status"`
	AudioHandle     string     `json:"audio_handle,omitempty" db:"audio_handle"`
	AudioURL        string     `json:"audio_url,omitempty" db:"audio_url"`
	AudioBytes      int64      `json:"audio_bytes,omitempty" db:"audio_bytes"`
	DurationSeconds float64    `json:"duration_seconds,omitempty" db:"duration_seconds"`
	AudioExpiresAt  *time.Time `json:"audio_expires_at,omitempty" db:"audio_expires_at"`
	ArchivePath     string     `json:"archive_path,omitempty" db:"archive_path"`
	Error           string     `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	JobStatusIdle         = "idle"
	JobStatusExtracting   = "extracting"
	JobStatusSynthesizing = "synthesizing"
	JobStatusCompleted    = "completed"
	JobStatusError        = "error"
)

// Busy reports whether a remote call is in flight for the job.
func (j *Job) Busy() bool {
	return j.Status == JobStatusExtracting || j.Status == JobStatusSynthesizing
}

// ClearAudio drops the reference to the job's generated audio.
func (j *Job) ClearAudio() {
	j.AudioHandle = ""
	j.AudioURL = ""
	j.AudioBytes = 0
	j.DurationSeconds = 0
	j.AudioExpiresAt = nil
	j.ArchivePath = ""
}

// AudioExpired reports whether the job's audio handle has outlived its TTL.
func (j *Job) AudioExpired(now time.Time) bool {
	return j.AudioHandle != "" && j.AudioExpiresAt != nil && !now.Before(*j.AudioExpiresAt)
}

// NewJob returns an idle job with the default voice pairing.
func NewJob(ownerID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Voice:          VoicePuck,
		SecondaryVoice: VoiceKore,
		Status:         JobStatusIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
