package provider

import (
	"context"
	"fmt"
)

// NewProvider creates the transport described by cfg. HTTP API providers
// use client; SES builds its own AWS SDK client.
func NewProvider(ctx context.Context, cfg ProviderConfig, client HTTPClient) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	switch cfg.Type {
	case "smtp":
		return NewSMTP(cfg), nil
	case "sendgrid":
		return NewSendGrid(cfg, client), nil
	case "mailgun":
		return NewMailgun(cfg, client), nil
	case "ses":
		api, err := newSESClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ses: build client: %w", err)
		}
		return NewSES(cfg, api), nil
	case "stdout":
		return NewStdout(cfg), nil
	case "file":
		return NewFile(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
