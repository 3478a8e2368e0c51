package queue

import (
	"context"
	"encoding/json"
	"time"

	"driving-school-admin/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Producer struct {
	client *redis.Client
	queue  string
	dlq    string
}

func NewProducer(client *redis.Client, queue, dlqSuffix string) *Producer {
	return &Producer{
		client: client,
		queue:  queue,
		dlq:    queue + dlqSuffix,
	}
}

// EnqueueImport pushes a job onto the import queue, assigning an ID and
// enqueue time to new jobs.
func (p *Producer) EnqueueImport(ctx context.Context, job *model.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.queue, data).Err()
}

// DeadLetter parks a message that will not be retried.
func (p *Producer) DeadLetter(ctx context.Context, data []byte) error {
	return p.client.LPush(ctx, p.dlq, data).Err()
}
