package queue

import "time"

// Config holds configuration for the dispatch request queue.
type Config struct {
	// Type selects the queue backend: "redis" (default) or "sqs".
	Type          string        `mapstructure:"type"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Stream        string        `mapstructure:"stream"`
	// StreamMaxLen approximately caps the stream length. Zero keeps every entry.
	StreamMaxLen  int64         `mapstructure:"stream_max_len"`
	Group         string        `mapstructure:"group"`
	Consumer      string        `mapstructure:"consumer"`
	WorkerCount   int           `mapstructure:"worker_count"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	// ProcessTimeout bounds one dispatch run. Zero means no limit.
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSEndpoint   string `mapstructure:"sqs_endpoint"`
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`          // long poll seconds, default 20
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"` // seconds, default 30
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		RedisAddr:       "localhost:6379",
		Stream:          "campaign-dispatch",
		Group:           "dispatchers",
		Consumer:        "dispatcher",
		WorkerCount:     1,
		BlockTimeout:    5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		SQSWaitTime:     20,
		SQSVisTimeout:   30,
	}
}
