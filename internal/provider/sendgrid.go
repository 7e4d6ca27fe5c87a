package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	sendgridDefaultEndpoint = "https://api.sendgrid.com"
	sendgridSendPath        = "/v3/mail/send"
	sendgridScopesPath      = "/v3/scopes"
)

// SendGrid sends through the v3 Mail Send API. Tags travel as custom_args
// so event webhooks can be matched back to a campaign recipient.
type SendGrid struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

func NewSendGrid(cfg ProviderConfig, client HTTPClient) *SendGrid {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	return &SendGrid{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   client,
	}
}

func (s *SendGrid) GetName() string { return "sendgrid" }

func (s *SendGrid) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	resp, err := s.do(ctx, "POST", sendgridSendPath, body)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: send request: %w", err)
	}
	if pe := ClassifyHTTPError("sendgrid", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}

	return &DeliveryResult{
		ProviderMessageID: resp.Headers["X-Message-Id"],
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"status_code": strconv.Itoa(resp.StatusCode)},
	}, nil
}

// HealthCheck verifies the API key by listing its scopes.
func (s *SendGrid) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := s.do(ctx, "GET", sendgridScopesPath, nil)
	if err != nil {
		return fmt.Errorf("sendgrid: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("sendgrid: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *SendGrid) do(ctx context.Context, method, path string, body []byte) (*HTTPResponse, error) {
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	return s.client.Do(&HTTPRequest{
		Context: ctx,
		Method:  method,
		URL:     s.endpoint + path,
		Headers: headers,
		Body:    body,
	})
}

// sendgridPayload is the subset of the v3 mail/send schema used here.
type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridEmail             `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
	Categories       []string                  `json:"categories,omitempty"`
	TrackingSettings sendgridTracking          `json:"tracking_settings"`
}

type sendgridPersonalization struct {
	To         []sendgridEmail   `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendgridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridToggle struct {
	Enable bool `json:"enable"`
}

// sendgridTracking turns SendGrid's own pixel and link rewriting off;
// messages already carry the dispatch beacon.
type sendgridTracking struct {
	ClickTracking sendgridToggle `json:"click_tracking"`
	OpenTracking  sendgridToggle `json:"open_tracking"`
}

func (s *SendGrid) buildPayload(msg *Message) sendgridPayload {
	// SendGrid requires text/plain before text/html.
	var content []sendgridContent
	if msg.TextBody != "" {
		content = append(content, sendgridContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		content = append(content, sendgridContent{Type: "text/html", Value: msg.HTMLBody})
	}

	p := sendgridPayload{
		Personalizations: []sendgridPersonalization{
			{To: []sendgridEmail{{Email: msg.To}}, CustomArgs: msg.Tags},
		},
		From:    sendgridEmail{Email: msg.From, Name: msg.FromName},
		Subject: msg.Subject,
		Content: content,
		Headers: msg.Headers,
	}
	if id := msg.Tags["campaign_id"]; id != "" {
		p.Categories = []string{"campaign-" + id}
	}
	return p
}
