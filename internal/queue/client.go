package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/audiobook/internal/config"
)

// Synthesis failures are recorded on the job; users retry by generating again.
const synthesisMaxRetry = 0

type Client struct {
	client  *asynq.Client
	timeout time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient returns a client whose tasks may run for taskTimeout plus a
// margin for transcoding and bookkeeping.
func NewClient(cfg config.RedisConfig, taskTimeout time.Duration) *Client {
	return &Client{
		client:  asynq.NewClient(RedisOpt(cfg)),
		timeout: taskTimeout + time.Minute,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueSynthesis(ctx context.Context, jobID uuid.UUID, ownerID string) error {
	payload := SynthesizePayload{JobID: jobID.String(), OwnerID: ownerID}
	return c.enqueue(ctx, TypeSynthesize, payload,
		asynq.MaxRetry(synthesisMaxRetry),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
