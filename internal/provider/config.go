package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for a delivery transport.
type ProviderConfig struct {
	// Type identifies the provider: "smtp", "ses", "sendgrid", "mailgun", "stdout", "file".
	Type string

	// APIKey is the authentication credential for HTTP APIs. For SES it is
	// the access key ID and Secret holds the secret access key.
	APIKey string
	Secret string

	// Endpoint overrides the default API URL (useful for testing).
	Endpoint string

	// Timeout is the maximum duration for API calls and SMTP dialing.
	Timeout time.Duration

	// Region is the AWS region for SES.
	Region string

	// Domain is the Mailgun sending domain.
	Domain string

	// SMTP relay settings.
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is "starttls", "implicit" or "none".
	TLSMode string

	// OutputDir is where the file provider writes messages.
	OutputDir string
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "smtp":
		if c.Host == "" {
			return errors.New("smtp: host is required")
		}
		if c.Port == 0 {
			c.Port = 587
		}
		switch c.TLSMode {
		case "":
			c.TLSMode = "starttls"
		case "starttls", "implicit", "none":
		default:
			return errors.New("smtp: unknown tls mode: " + c.TLSMode)
		}
		if (c.Username == "") != (c.Password == "") {
			return errors.New("smtp: username and password must be set together")
		}
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case "ses":
		if c.Region == "" {
			return errors.New("ses: region is required")
		}
	case "mailgun":
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case "stdout":
		// No configuration required.
	case "file":
		// OutputDir is optional (defaults to ./mail_output).
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
