package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	recordMaxRetry  = 5
	recordTimeout   = 30 * time.Second
	recordRetention = 24 * time.Hour
)

// Client enqueues conversion records for cmd/worker.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueConversionRecord uses the conversion id as the task id. A conflict
// means the record is already queued and is reported as success.
func (c *Client) EnqueueConversionRecord(ctx context.Context, payload ConversionRecordPayload) (*asynq.TaskInfo, error) {
	task, err := NewConversionRecordTask(payload)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task, c.recordOptions(payload.ConversionID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return &asynq.TaskInfo{ID: payload.ConversionID, Queue: c.queue, Type: TypeConversionRecord}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", TypeConversionRecord, payload.ConversionID, err)
	}
	return info, nil
}

func (c *Client) recordOptions(conversionID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(conversionID),
		asynq.MaxRetry(recordMaxRetry),
		asynq.Timeout(recordTimeout),
		asynq.Retention(recordRetention),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
