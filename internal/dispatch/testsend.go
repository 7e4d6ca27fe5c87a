package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/personalize"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// TestSend describes a one-off message to an arbitrary address.
type TestSend struct {
	// CampaignID optionally names the campaign whose content is sent.
	CampaignID string `json:"campaign_id,omitempty"`
	// Subject and Content override the campaign's resolved content.
	Subject string `json:"subject,omitempty"`
	Content string `json:"content,omitempty"`
	To      string `json:"to"`
	// Recipient holds sample fields used for personalization.
	Recipient domain.Recipient  `json:"recipient"`
	Vars      map[string]string `json:"vars,omitempty"`
}

// SendTest personalizes and transmits a single test message. No tracking
// beacon is added and nothing is written to the store.
func (d *Dispatcher) SendTest(ctx context.Context, ts TestSend) (*provider.DeliveryResult, error) {
	addr, err := mail.ParseAddress(ts.To)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient address: %w", ErrInvalidTestSend, err)
	}

	subject, body := ts.Subject, ts.Content
	if ts.CampaignID != "" {
		c, err := d.loadCampaign(ctx, ts.CampaignID)
		if err != nil {
			return nil, err
		}
		msg, err := d.resolveContent(ctx, c)
		if err != nil {
			return nil, err
		}
		if subject == "" {
			subject = msg.subject
		}
		if body == "" {
			body = msg.body
		}
	}
	if body == "" {
		return nil, fmt.Errorf("%w: no content", ErrInvalidTestSend)
	}

	rcpt := ts.Recipient
	rcpt.ID = ""
	if rcpt.Email == "" {
		rcpt.Email = addr.Address
	}
	data := personalize.Data{Recipient: rcpt, Vars: mergeVars(d.cfg.Vars, ts.Vars)}

	// Empty ids leave the content without a beacon.
	html := d.cfg.Tracking.InjectBeacon(personalize.Render(body, data), "", "")

	p, err := d.openTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	defer closeTransport(p, d.log)

	res, err := safeSend(ctx, p, &provider.Message{
		From:     d.cfg.From,
		FromName: d.cfg.FromName,
		To:       addr.Address,
		Subject:  personalize.Render(subject, data),
		HTMLBody: html,
		Tags:     map[string]string{"test_send": "true"},
	})
	if err != nil {
		d.log.Warn().Err(err).Str("provider", p.GetName()).Str("to", addr.Address).Msg("test send failed")
		return nil, fmt.Errorf("send test message: %w", err)
	}

	d.log.Info().
		Str("provider", p.GetName()).
		Str("to", addr.Address).
		Str("campaign_id", ts.CampaignID).
		Msg("test message sent")
	return res, nil
}

// Preview renders a campaign for one recipient exactly as a send would,
// without the tracking beacon. An empty recipientID previews with an
// anonymous recipient.
func (d *Dispatcher) Preview(ctx context.Context, campaignID, recipientID string, vars map[string]string) (*personalize.PreviewResult, error) {
	c, err := d.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	msg, err := d.resolveContent(ctx, c)
	if err != nil {
		return nil, err
	}

	var rcpt domain.Recipient
	if recipientID != "" {
		r, err := d.store.GetRecipient(ctx, recipientID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get recipient: %w", err)
		}
		rcpt = *r
	}

	data := personalize.Data{
		Recipient:      rcpt,
		UnsubscribeURL: d.cfg.Tracking.UnsubscribeURL(rcpt.ID),
		Vars:           vars,
	}
	return d.previewer.Preview(msg.subject, msg.body, data, d.cfg.Vars), nil
}

// mergeVars overlays override on base.
func mergeVars(base, override map[string]string) map[string]string {
	if len(override) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
