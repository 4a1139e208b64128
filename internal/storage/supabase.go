// Package storage archives finished audiobooks to Supabase object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/audiobook/internal/models"
	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func NewSupabaseStorage(supabaseURL, serviceKey, bucket string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(supabaseURL, "/") + "/storage/v1",
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// ObjectPath is where a job's audio lives inside the bucket.
func ObjectPath(j *models.Job) string {
	return fmt.Sprintf("%s/%s/%s", j.OwnerID, j.ID, audio.DefaultFilename)
}

// Archive uploads blob for the job, replacing any earlier upload, and
// returns the object path.
func (s *SupabaseStorage) Archive(ctx context.Context, j *models.Job, blob *audio.Blob) (string, error) {
	path := ObjectPath(j)
	if err := s.upload(ctx, path, blob.Data, blob.ContentType); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes the archived copy of the job's audio. Missing objects are
// not an error.
func (s *SupabaseStorage) Remove(ctx context.Context, j *models.Job) error {
	req, err := s.newRequest(ctx, http.MethodDelete, ObjectPath(j), nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete failed (%d)", resp.StatusCode)
	}
	return nil
}

func (s *SupabaseStorage) PublicURL(path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, path)
}

func (s *SupabaseStorage) upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := s.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *SupabaseStorage) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", strings.ToLower(method), err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	return req, nil
}
