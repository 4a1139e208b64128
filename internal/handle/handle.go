// Package handle hands out short-lived, revocable references to encoded
// audio blobs. Each scope (usually a job ID) holds at most one live handle:
// acquiring a new one revokes the previous one.
package handle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

var ErrNotFound = errors.New("handle not found")

type Handle struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Registry interface {
	// Acquire stores blob under a new handle for scope, revoking the
	// scope's previous handle.
	Acquire(ctx context.Context, scope string, blob *audio.Blob) (*Handle, error)
	Open(ctx context.Context, id string) (*audio.Blob, error)
	// Lookup returns a live handle's metadata without its blob.
	Lookup(ctx context.Context, id string) (*Handle, error)
	Revoke(ctx context.Context, id string) error
	// Release revokes whatever handle scope currently holds.
	Release(ctx context.Context, scope string) error
}

// URLBuilder maps handle IDs to the path the API serves them on.
type URLBuilder func(id string) string

func PathURL(baseURL string) URLBuilder {
	base := strings.TrimRight(baseURL, "/")
	return func(id string) string {
		return base + "/api/v1/audio/" + id
	}
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
