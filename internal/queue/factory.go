package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewQueue creates an Enqueuer and a Dequeuer for cfg. The Dequeuer is nil
// when handler is nil, which is how publish-only processes (the API server)
// use it.
func NewQueue(cfg Config, handler Handler, log zerolog.Logger) (Enqueuer, Dequeuer, error) {
	switch cfg.Type {
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return newRedisQueue(client, cfg, handler, log)

	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, nil, fmt.Errorf("sqs queue url is required")
		}
		sqsClient, err := newAWSSQSClient(cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		enqueuer := NewSQSEnqueuer(sqsClient, cfg.SQSQueueURL, log)
		if handler == nil {
			return enqueuer, nil, nil
		}
		return enqueuer, NewSQSDequeuer(sqsClient, handler, cfg, log), nil

	default:
		return nil, nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}

func newRedisQueue(client *redis.Client, cfg Config, handler Handler, log zerolog.Logger) (Enqueuer, Dequeuer, error) {
	if cfg.Stream == "" || cfg.Group == "" {
		return nil, nil, fmt.Errorf("redis stream and group are required")
	}
	enqueuer := NewRedisEnqueuer(client, cfg.Stream, WithMaxLen(cfg.StreamMaxLen))
	if handler == nil {
		return enqueuer, nil, nil
	}
	return enqueuer, NewRedisDequeuer(client, handler, cfg, log), nil
}
