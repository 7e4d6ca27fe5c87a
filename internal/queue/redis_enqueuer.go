package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisEnqueuer appends dispatch requests to a Redis stream.
type RedisEnqueuer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisOption configures a RedisEnqueuer.
type RedisOption func(*RedisEnqueuer)

// WithMaxLen trims the stream to roughly n entries on every append.
// Values below one leave the stream untrimmed.
func WithMaxLen(n int64) RedisOption {
	return func(e *RedisEnqueuer) {
		if n > 0 {
			e.maxLen = n
		}
	}
}

func NewRedisEnqueuer(client *redis.Client, stream string, opts ...RedisOption) *RedisEnqueuer {
	e := &RedisEnqueuer{client: client, stream: stream}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue XADDs req and returns the stream entry ID. The campaign id is
// stored beside the payload so XRANGE output is readable without decoding.
func (e *RedisEnqueuer) Enqueue(ctx context.Context, req *Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: e.stream,
		Values: []any{"data", string(payload), "campaign_id", req.CampaignID},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}

	entryID, err := e.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s for campaign %s: %w", e.stream, req.CampaignID, err)
	}

	RequestsEnqueuedTotal.WithLabelValues("redis").Inc()
	return entryID, nil
}
