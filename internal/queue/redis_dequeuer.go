package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDequeuer runs worker goroutines that consume dispatch requests from a
// Redis stream through a consumer group.
type RedisDequeuer struct {
	client  *redis.Client
	handler Handler
	config  Config
	log     zerolog.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewRedisDequeuer creates a RedisDequeuer for cfg.Stream and cfg.Group.
func NewRedisDequeuer(client *redis.Client, handler Handler, cfg Config, log zerolog.Logger) *RedisDequeuer {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &RedisDequeuer{
		client:  client,
		handler: handler,
		config:  cfg,
		log:     log,
	}
}

// Start creates the consumer group (if it does not already exist) and
// launches the configured number of worker goroutines.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	if err := d.createConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("%s-%d", d.config.Consumer, i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("stream", d.config.Stream).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for them to finish.
func (d *RedisDequeuer) Stop(_ context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// createConsumerGroup creates the consumer group, ignoring an existing one.
func (d *RedisDequeuer) createConsumerGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.config.Stream, d.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", d.config.Group, d.config.Stream, err)
	}
	return nil
}

func (d *RedisDequeuer) runWorker(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	d.log.Info().Str("consumer", consumerName).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Str("consumer", consumerName).Msg("worker stopping")
			return
		default:
		}

		xStreams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.Group,
			Consumer: consumerName,
			Streams:  []string{d.config.Stream, ">"},
			Count:    1,
			Block:    d.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			continue
		}

		for _, stream := range xStreams {
			for _, xMsg := range stream.Messages {
				d.processMessage(ctx, xMsg)
			}
		}
	}
}

// processMessage decodes one stream entry, hands it to the handler and
// acknowledges it regardless of the outcome.
func (d *RedisDequeuer) processMessage(ctx context.Context, xMsg redis.XMessage) {
	defer func() {
		if err := d.client.XAck(context.WithoutCancel(ctx), d.config.Stream, d.config.Group, xMsg.ID).Err(); err != nil {
			d.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("failed to acknowledge request")
		}
	}()

	data, ok := xMsg.Values["data"].(string)
	if !ok {
		d.log.Error().Str("entry_id", xMsg.ID).Msg("invalid request data type")
		RequestsProcessedTotal.WithLabelValues("redis", "malformed").Inc()
		return
	}

	var req Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		d.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("failed to unmarshal request")
		RequestsProcessedTotal.WithLabelValues("redis", "malformed").Inc()
		return
	}

	handle(ctx, d.handler, &req, d.config.ProcessTimeout, "redis", d.log)
}

// handle runs the handler for one decoded request and records the outcome.
func handle(ctx context.Context, h Handler, req *Request, timeout time.Duration, backend string, log zerolog.Logger) {
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := h.Handle(ctx, req)
	RequestProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", req.ID).
			Str("campaign_id", req.CampaignID).
			Msg("dispatch request failed")
		RequestsProcessedTotal.WithLabelValues(backend, "error").Inc()
		return
	}
	RequestsProcessedTotal.WithLabelValues(backend, "ok").Inc()
}
