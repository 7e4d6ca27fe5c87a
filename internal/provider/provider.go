package provider

import (
	"context"
	"net/mail"
	"sort"
	"time"
)

// Provider is a mail-sending channel. A dispatch run verifies it once with
// HealthCheck and then reuses it for every recipient.
type Provider interface {
	// Send transmits one message and returns the provider's receipt.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "smtp", "ses").
	GetName() string
	// HealthCheck verifies the channel can be established and used.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	// Context bounds the request; nil means context.Background.
	Context context.Context
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one personalized campaign email addressed to a single recipient.
type Message struct {
	// ID identifies the message in provider receipts and output files.
	ID       string
	From     string
	FromName string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Headers  map[string]string
	// Tags are provider-side metadata such as campaign and recipient ids.
	Tags map[string]string
}

// FromHeader formats the sender as an RFC 5322 address, including the
// display name when one is configured.
func (m *Message) FromHeader() string {
	addr := mail.Address{Name: m.FromName, Address: m.From}
	return addr.String()
}

// DeliveryResult is a provider's receipt for an accepted message.
type DeliveryResult struct {
	ProviderMessageID string
	Timestamp         time.Time
	Metadata          map[string]string
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
