package handle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

const (
	blobKeyPrefix  = "audiobook:handle:"
	scopeKeyPrefix = "audiobook:handle-scope:"
)

// RedisRegistry stores blobs in Redis so handles survive restarts and are
// visible to every API and worker process.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	url    URLBuilder
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration, url URLBuilder) *RedisRegistry {
	if url == nil {
		url = PathURL("")
	}
	return &RedisRegistry{client: client, ttl: ttl, url: url}
}

func (r *RedisRegistry) Acquire(ctx context.Context, scope string, blob *audio.Blob) (*Handle, error) {
	now := time.Now()
	h := Handle{
		ID:          newID(),
		Scope:       scope,
		ContentType: blob.ContentType,
		Size:        blob.Size(),
		CreatedAt:   now,
	}
	h.URL = r.url(h.ID)
	if r.ttl > 0 {
		h.ExpiresAt = now.Add(r.ttl)
	}

	prev, err := r.client.Get(ctx, scopeKey(scope)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("lookup handle for %s: %w", scope, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" {
			pipe.Del(ctx, blobKey(prev))
		}
		pipe.HSet(ctx, blobKey(h.ID),
			"data", blob.Data,
			"content_type", blob.ContentType,
			"scope", scope,
			"created_at", strconv.FormatInt(now.Unix(), 10),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, blobKey(h.ID), r.ttl)
		}
		pipe.Set(ctx, scopeKey(scope), h.ID, r.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store handle: %w", err)
	}

	return &h, nil
}

func (r *RedisRegistry) Open(ctx context.Context, id string) (*audio.Blob, error) {
	fields, err := r.client.HGetAll(ctx, blobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("open handle %s: %w", id, err)
	}
	data, ok := fields["data"]
	if !ok {
		return nil, ErrNotFound
	}
	return &audio.Blob{Data: []byte(data), ContentType: fields["content_type"]}, nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, id string) (*Handle, error) {
	key := blobKey(id)
	var (
		fields *redis.SliceCmd
		size   *redis.IntCmd
		ttl    *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HMGet(ctx, key, "scope", "content_type", "created_at")
		size = pipe.HStrLen(ctx, key, "data")
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup handle %s: %w", id, err)
	}

	vals := fields.Val()
	scope, ok := vals[0].(string)
	if !ok {
		return nil, ErrNotFound
	}
	h := &Handle{ID: id, Scope: scope, URL: r.url(id), Size: int(size.Val())}
	h.ContentType, _ = vals[1].(string)
	if created, ok := vals[2].(string); ok {
		if sec, err := strconv.ParseInt(created, 10, 64); err == nil {
			h.CreatedAt = time.Unix(sec, 0)
		}
	}
	if d := ttl.Val(); d > 0 {
		h.ExpiresAt = time.Now().Add(d)
	}
	return h, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, id string) error {
	scope, err := r.client.HGet(ctx, blobKey(id), "scope").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke handle %s: %w", id, err)
	}

	if err := r.client.Del(ctx, blobKey(id)).Err(); err != nil {
		return fmt.Errorf("revoke handle %s: %w", id, err)
	}

	current, err := r.client.Get(ctx, scopeKey(scope)).Result()
	if err == nil && current == id {
		return r.client.Del(ctx, scopeKey(scope)).Err()
	}
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, scope string) error {
	id, err := r.client.Get(ctx, scopeKey(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", scope, err)
	}
	return r.client.Del(ctx, blobKey(id), scopeKey(scope)).Err()
}

func blobKey(id string) string     { return blobKeyPrefix + id }
func scopeKey(scope string) string { return scopeKeyPrefix + scope }
