package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const mailgunDefaultEndpoint = "https://api.mailgun.net"

// Mailgun sends through the Mailgun messages API. Mailgun's own open and
// click tracking is switched off because messages already carry the
// dispatch beacon.
type Mailgun struct {
	apiKey   string
	domain   string
	endpoint string
	client   HTTPClient
}

func NewMailgun(cfg ProviderConfig, client HTTPClient) *Mailgun {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = mailgunDefaultEndpoint
	}
	return &Mailgun{
		apiKey:   cfg.APIKey,
		domain:   cfg.Domain,
		endpoint: endpoint,
		client:   client,
	}
}

func (m *Mailgun) GetName() string { return "mailgun" }

func (m *Mailgun) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	resp, err := m.do(ctx, "POST", "/v3/"+m.domain+"/messages", []byte(m.buildForm(msg).Encode()))
	if err != nil {
		return nil, fmt.Errorf("mailgun: send request: %w", err)
	}
	if pe := ClassifyHTTPError("mailgun", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}

	var mgResp mailgunResponse
	_ = json.Unmarshal(resp.Body, &mgResp)
	return &DeliveryResult{
		ProviderMessageID: mgResp.ID,
		Timestamp:         time.Now(),
		Metadata: map[string]string{
			"message":     mgResp.Message,
			"status_code": strconv.Itoa(resp.StatusCode),
		},
	}, nil
}

// HealthCheck verifies the API key can read the sending domain.
func (m *Mailgun) HealthCheck(ctx context.Context) error {
	resp, err := m.do(ctx, "GET", "/v3/domains/"+m.domain, nil)
	if err != nil {
		return fmt.Errorf("mailgun: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("mailgun: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Mailgun) do(ctx context.Context, method, path string, form []byte) (*HTTPResponse, error) {
	headers := map[string]string{"Authorization": "Basic " + basicAuth("api", m.apiKey)}
	if form != nil {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return m.client.Do(&HTTPRequest{
		Context: ctx,
		Method:  method,
		URL:     m.endpoint + path,
		Headers: headers,
		Body:    form,
	})
}

type mailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (m *Mailgun) buildForm(msg *Message) url.Values {
	form := url.Values{}
	form.Set("from", msg.FromHeader())
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	if msg.HTMLBody != "" {
		form.Set("html", msg.HTMLBody)
	}
	if msg.TextBody != "" {
		form.Set("text", msg.TextBody)
	}
	form.Set("o:tracking", "no")

	for key, value := range msg.Headers {
		form.Set("h:"+key, value)
	}
	// v: variables come back on webhooks; the campaign tag groups
	// Mailgun's own analytics.
	for key, value := range msg.Tags {
		form.Set("v:"+key, value)
	}
	if id := msg.Tags["campaign_id"]; id != "" {
		form.Add("o:tag", "campaign-"+id)
	}
	return form
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
