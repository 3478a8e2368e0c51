package queue

import (
	"context"
	"time"

	"driving-school-admin/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const pollTimeout = 5 * time.Second

type Consumer struct {
	client   *redis.Client
	producer *Producer
	log      zerolog.Logger
}

// MessageHandler processes one message. An error sends the message to the
// dead-letter queue.
type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(client *redis.Client, producer *Producer) *Consumer {
	return &Consumer{
		client:   client,
		producer: producer,
		log:      logger.Component("queue").With().Str("queue", producer.queue).Logger(),
	}
}

// Consume blocks on the import queue until ctx is done.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, pollTimeout, c.producer.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("Failed to consume message")
			time.Sleep(time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := []byte(result[1])
		if err := handler(ctx, message); err != nil {
			c.log.Error().Err(err).Msg("Failed to process message")
			if dlqErr := c.producer.DeadLetter(context.WithoutCancel(ctx), message); dlqErr != nil {
				c.log.Error().Err(dlqErr).Str("dlq", c.producer.dlq).Msg("Failed to move message to DLQ")
			}
		}
	}
}
