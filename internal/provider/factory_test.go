package provider

import (
	"context"
	"testing"
)

// mockHTTPClient implements HTTPClient for NewProvider tests.
type mockHTTPClient struct {
	status   int
	body     []byte
	headers  map[string]string
	requests []*HTTPRequest
}

func (m *mockHTTPClient) Do(req *HTTPRequest) (*HTTPResponse, error) {
	m.requests = append(m.requests, req)
	status := m.status
	if status == 0 {
		status = 200
	}
	return &HTTPResponse{StatusCode: status, Body: m.body, Headers: m.headers}, nil
}

func TestNewProvider_Types(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
	}{
		{"smtp", ProviderConfig{Type: "smtp", Host: "relay.example.com"}, "smtp"},
		{"sendgrid", ProviderConfig{Type: "sendgrid", APIKey: "k"}, "sendgrid"},
		{"mailgun", ProviderConfig{Type: "mailgun", APIKey: "k", Domain: "mg.example.com"}, "mailgun"},
		{"ses", ProviderConfig{Type: "ses", Region: "us-east-1", APIKey: "AKIA", Secret: "s"}, "ses"},
		{"stdout", ProviderConfig{Type: "stdout"}, "stdout"},
		{"file", ProviderConfig{Type: "file", OutputDir: t.TempDir()}, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.cfg, &mockHTTPClient{})
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.GetName() != tt.wantName {
				t.Errorf("GetName() = %q, want %q", p.GetName(), tt.wantName)
			}
		})
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Type: "sendgrid"}, &mockHTTPClient{})
	if err == nil {
		t.Fatal("expected error for invalid config, got nil")
	}
	want := "invalid provider config: sendgrid: api_key is required"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestNewProvider_UnsupportedType(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Type: "pigeon"}, &mockHTTPClient{})
	if err == nil {
		t.Fatal("expected error for unsupported type, got nil")
	}
}

func TestMessage_FromHeader(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"address only", Message{From: "news@example.com"}, "<news@example.com>"},
		{"with display name", Message{From: "news@example.com", FromName: "Example News"}, `"Example News" <news@example.com>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.FromHeader(); got != tt.want {
				t.Errorf("FromHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}
