// Package bootstrap turns process configuration into the components the
// binaries share and seeds demo data on first boot.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/archive"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

// Logger builds the process logger from the logging section.
func Logger(c config.LoggingConfig) zerolog.Logger {
	return logger.NewFromConfig(logger.LoggingConfig{
		Level:        c.Level,
		Output:       c.Output,
		FilePath:     c.FilePath,
		MaxSizeMB:    c.MaxSizeMB,
		MaxFiles:     c.MaxFiles,
		MaxAgeDays:   c.MaxAgeDays,
		Uncompressed: !c.Compress,
	})
}

// ProviderConfig maps the provider section to a transport configuration.
func ProviderConfig(c config.ProviderConfig) provider.ProviderConfig {
	return provider.ProviderConfig{
		Type:      c.Type,
		APIKey:    c.APIKey,
		Secret:    c.Secret,
		Endpoint:  c.Endpoint,
		Timeout:   c.Timeout,
		Region:    c.Region,
		Domain:    c.Domain,
		Host:      c.SMTP.Host,
		Port:      c.SMTP.Port,
		Username:  c.SMTP.Username,
		Password:  c.SMTP.Password,
		TLSMode:   c.SMTP.TLS,
		OutputDir: c.FileDir,
	}
}

// Transport returns a factory building a fresh transport for every run, so
// SMTP connections never outlive the run that opened them.
func Transport(c config.ProviderConfig) dispatch.TransportFactory {
	pcfg := ProviderConfig(c)
	client := provider.NewHTTPClient(pcfg.Timeout)
	return func(ctx context.Context) (provider.Provider, error) {
		return provider.NewProvider(ctx, pcfg, client)
	}
}

// Instrumenter maps the tracking section to beacon and unsubscribe URL settings.
func Instrumenter(c config.TrackingConfig) tracking.Instrumenter {
	return tracking.Instrumenter{
		TrackingURL:     c.TrackingURL,
		BaseURL:         c.BaseURL,
		UnsubscribePath: c.UnsubscribePath,
	}
}

// Archive opens the configured rendered-message archive. It returns nil when
// archiving is disabled.
func Archive(c config.ArchiveConfig, log zerolog.Logger) (archive.Archive, error) {
	if c.Type == "" || c.Type == "none" {
		return nil, nil
	}
	arch, err := archive.New(archive.Config{
		Type:       c.Type,
		Path:       c.LocalPath,
		S3Bucket:   c.S3Bucket,
		S3Prefix:   c.S3Prefix,
		S3Endpoint: c.S3Endpoint,
		S3Region:   c.S3Region,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open %s archive: %w", c.Type, err)
	}
	return arch, nil
}

// DispatchConfig maps sender, dispatch and tracking settings to a dispatch.Config.
func DispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		From:     cfg.Sender.Address,
		FromName: cfg.Sender.Name,
		Workers:  cfg.Dispatch.Workers,
		Throttle: cfg.Dispatch.Throttle,
		Tracking: Instrumenter(cfg.Tracking),
		Vars:     cfg.Dispatch.Vars,
	}
}

// NewDispatcher builds a Dispatcher over store with the configured transport.
// arch may be nil to disable archiving.
func NewDispatcher(cfg *config.Config, store dispatch.Store, arch archive.Archive, log zerolog.Logger) *dispatch.Dispatcher {
	return dispatch.New(store, Transport(cfg.Provider), arch, DispatchConfig(cfg), log)
}

// QueueConfig maps the queue section to a queue.Config.
func QueueConfig(c config.QueueConfig) queue.Config {
	qc := queue.DefaultConfig()
	if c.Type != "" {
		qc.Type = c.Type
	}
	qc.RedisAddr = c.RedisAddr
	qc.RedisPassword = c.RedisPassword
	qc.RedisDB = c.RedisDB
	if c.Stream != "" {
		qc.Stream = c.Stream
	}
	qc.StreamMaxLen = c.StreamMaxLen
	if c.Group != "" {
		qc.Group = c.Group
	}
	if c.Consumer != "" {
		qc.Consumer = c.Consumer
	}
	if c.WorkerCount > 0 {
		qc.WorkerCount = c.WorkerCount
	}
	if c.BlockTimeout > 0 {
		qc.BlockTimeout = c.BlockTimeout
	}
	qc.ProcessTimeout = c.ProcessTimeout
	if c.ShutdownTimeout > 0 {
		qc.ShutdownTimeout = c.ShutdownTimeout
	}
	qc.SQSRegion = c.SQSRegion
	qc.SQSQueueURL = c.SQSQueueURL
	qc.SQSEndpoint = c.SQSEndpoint
	return qc
}
