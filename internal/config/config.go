package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sender   SenderConfig   `mapstructure:"sender"`
	Provider ProviderConfig `mapstructure:"provider"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// AsyncDispatch makes the dispatch endpoint enqueue requests instead of
	// running them inline.
	AsyncDispatch bool `mapstructure:"async_dispatch"`
	// APIKeys maps operator names to bearer keys. Empty disables authentication.
	APIKeys map[string]string `mapstructure:"api_keys"`
	// TestSendLimit caps test sends per recipient address per TestSendWindow.
	TestSendLimit  int           `mapstructure:"test_send_limit"`
	TestSendWindow time.Duration `mapstructure:"test_send_window"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`

	// MaxAgeDays removes rotated log files older than this many days.
	MaxAgeDays int `mapstructure:"max_age_days"`
	// Compress gzips rotated log files.
	Compress bool `mapstructure:"compress"`
}

// SenderConfig is the process-wide sender identity used for every message.
type SenderConfig struct {
	Address string `mapstructure:"address"`
	Name    string `mapstructure:"name"`
}

// ProviderConfig selects and configures the delivery transport.
type ProviderConfig struct {
	Type     string        `mapstructure:"type"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	// Secret is the SES secret access key paired with APIKey.
	Secret   string        `mapstructure:"secret"`
	Domain   string        `mapstructure:"domain"`
	Region   string        `mapstructure:"region"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	// FileDir is the output directory of the "file" provider.
	FileDir string `mapstructure:"file_dir"`
}

// SMTPConfig holds upstream SMTP relay settings for the "smtp" provider.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TLS is one of "starttls" (default), "implicit" or "none".
	TLS string `mapstructure:"tls"`
}

// TrackingConfig configures the tracking beacon and unsubscribe URLs.
type TrackingConfig struct {
	// TrackingURL is the GET endpoint receiving open beacons.
	TrackingURL     string        `mapstructure:"tracking_url"`
	BaseURL         string        `mapstructure:"base_url"`
	UnsubscribePath string        `mapstructure:"unsubscribe_path"`
	OpenDedupWindow time.Duration `mapstructure:"open_dedup_window"`
}

// DispatchConfig controls dispatch run throughput.
type DispatchConfig struct {
	Workers  int           `mapstructure:"workers"`
	Throttle time.Duration `mapstructure:"throttle"`
	// ScheduleInterval is how often the worker looks for due scheduled campaigns.
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`
	// Vars are global custom variable values used when a recipient has none.
	Vars map[string]string `mapstructure:"vars"`
}

// QueueConfig holds dispatch request queue settings.
type QueueConfig struct {
	Type            string        `mapstructure:"type"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	Stream          string        `mapstructure:"stream"`
	StreamMaxLen    int64         `mapstructure:"stream_max_len"`
	Group           string        `mapstructure:"group"`
	Consumer        string        `mapstructure:"consumer"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	WorkerCount     int           `mapstructure:"worker_count"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	SQSRegion       string        `mapstructure:"sqs_region"`
	SQSQueueURL     string        `mapstructure:"sqs_queue_url"`
	SQSEndpoint     string        `mapstructure:"sqs_endpoint"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ArchiveConfig selects where rendered messages are archived.
type ArchiveConfig struct {
	// Type is "", "local" or "s3". Empty disables archiving.
	Type       string `mapstructure:"type"`
	LocalPath  string `mapstructure:"local_path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 60*time.Second)
	v.SetDefault("api.test_send_limit", 20)
	v.SetDefault("api.test_send_window", time.Hour)
	v.SetDefault("api.test_send_limit", 20)
	v.SetDefault("api.test_send_window", time.Hour)
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.compress", true)
	v.SetDefault("provider.type", "stdout")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.smtp.port", 587)
	v.SetDefault("provider.smtp.tls", "starttls")
	v.SetDefault("tracking.unsubscribe_path", "/api/v1/unsubscribe")
	v.SetDefault("tracking.open_dedup_window", time.Hour)
	v.SetDefault("dispatch.workers", 1)
	v.SetDefault("dispatch.throttle", 100*time.Millisecond)
	v.SetDefault("dispatch.schedule_interval", time.Minute)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.stream", "campaign-dispatch")
	v.SetDefault("queue.group", "dispatchers")
	v.SetDefault("queue.consumer", "dispatcher-1")
	v.SetDefault("queue.block_timeout", 5*time.Second)
	v.SetDefault("queue.worker_count", 1)
	v.SetDefault("queue.shutdown_timeout", 30*time.Second)
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix CAMPAIGN_DISPATCH_ override file values.
// For example, CAMPAIGN_DISPATCH_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("CAMPAIGN_DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings the binaries cannot start without.
func (c *Config) Validate() error {
	if c.Sender.Address == "" {
		return fmt.Errorf("sender.address is required")
	}
	if c.Tracking.TrackingURL == "" {
		return fmt.Errorf("tracking.tracking_url is required")
	}
	if c.Tracking.BaseURL == "" {
		return fmt.Errorf("tracking.base_url is required")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers must be at least 1, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.Throttle < 0 {
		return fmt.Errorf("dispatch.throttle must not be negative")
	}
	return nil
}
