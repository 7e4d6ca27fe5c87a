package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

// --- SendGrid Webhook Tests ---

func TestSendGridWebhookHandler_MapsEvents(t *testing.T) {
	rec := &mockRecorder{}

	body := `[
		{"email":"a@example.com","event":"delivered","sg_message_id":"m1","campaign_id":"c1","recipient_id":"r1"},
		{"email":"a@example.com","event":"open","sg_message_id":"m1","campaign_id":"c1","recipient_id":"r1"},
		{"email":"a@example.com","event":"click","url":"https://example.com/x","campaign_id":"c1","recipient_id":"r1"},
		{"email":"b@example.com","event":"bounce","sg_message_id":"m2","reason":"550 User unknown","campaign_id":"c1","recipient_id":"r2"},
		{"email":"c@example.com","event":"spamreport","sg_message_id":"m3","campaign_id":"c1","recipient_id":"r3"},
		{"email":"qa@example.com","event":"open","sg_message_id":"m4"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sendgrid", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	SendGridWebhookHandler(rec).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}

	events := rec.recorded()
	want := []struct {
		recipient string
		typ       domain.EventType
	}{
		{"r1", domain.EventOpen},
		{"r1", domain.EventClick},
		{"r2", domain.EventBounce},
		{"r3", domain.EventUnsubscribe},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i].RecipientID != w.recipient || events[i].Type != w.typ || events[i].CampaignID != "c1" {
			t.Errorf("event %d = %+v, want %s/%s", i, events[i], w.recipient, w.typ)
		}
	}
	if events[2].Payload["reason"] != "550 User unknown" || events[2].Payload["provider"] != "sendgrid" {
		t.Errorf("bounce payload = %v", events[2].Payload)
	}
	if _, ok := events[0].Payload["reason"]; ok {
		t.Errorf("empty values must be dropped: %v", events[0].Payload)
	}
}

func TestSendGridWebhookHandler_InvalidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sendgrid", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()

	SendGridWebhookHandler(&mockRecorder{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestSendGridWebhookHandler_RecordErrorsStillAcknowledge(t *testing.T) {
	for _, err := range []error{tracking.ErrUnknownRecipient, errors.New("db down")} {
		rec := &mockRecorder{recordErr: err}
		body := `[{"event":"bounce","campaign_id":"c1","recipient_id":"r1"}]`
		w := httptest.NewRecorder()

		SendGridWebhookHandler(rec).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

		if w.Code != http.StatusOK {
			t.Errorf("%v: expected status 200, got %d", err, w.Code)
		}
	}
}

// --- SES Webhook Tests ---

func sesEvent(t *testing.T, kind string, extra map[string]any) string {
	t.Helper()
	ev := map[string]any{
		"eventType": kind,
		"mail": map[string]any{
			"messageId": "ses-1",
			"tags": map[string][]string{
				"campaign_id":  {"c1"},
				"recipient_id": {"r1"},
			},
		},
	}
	for k, v := range extra {
		ev[k] = v
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestSESWebhookHandler_SNSNotification(t *testing.T) {
	rec := &mockRecorder{}
	inner := sesEvent(t, "Bounce", map[string]any{
		"bounce": map[string]string{"bounceType": "Permanent", "bounceSubType": "General"},
	})
	envelope, _ := json.Marshal(map[string]string{"Type": "Notification", "Message": inner})

	w := httptest.NewRecorder()
	SESWebhookHandler(rec).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/ses", strings.NewReader(string(envelope))))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}
	events := rec.recorded()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.CampaignID != "c1" || ev.RecipientID != "r1" || ev.Type != domain.EventBounce {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Payload["reason"] != "Permanent: General" || ev.Payload["provider_message_id"] != "ses-1" {
		t.Errorf("unexpected payload: %v", ev.Payload)
	}
}

func TestSESWebhookHandler_EventMapping(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  domain.EventType
		count int
	}{
		{"complaint", sesEvent(t, "Complaint", nil), domain.EventUnsubscribe, 1},
		{"open", sesEvent(t, "Open", nil), domain.EventOpen, 1},
		{"click", sesEvent(t, "Click", map[string]any{"click": map[string]string{"link": "https://example.com"}}), domain.EventClick, 1},
		{"transient bounce", sesEvent(t, "Bounce", map[string]any{"bounce": map[string]string{"bounceType": "Transient"}}), "", 0},
		{"delivery", sesEvent(t, "Delivery", nil), "", 0},
		{"legacy notification", `{"notificationType":"Complaint","mail":{"tags":{"recipient_id":["r1"]}}}`, domain.EventUnsubscribe, 1},
		{"subscription confirmation", `{"Type":"SubscriptionConfirmation","SubscribeURL":"https://sns.example.com/confirm"}`, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			w := httptest.NewRecorder()

			SESWebhookHandler(rec).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			events := rec.recorded()
			if len(events) != tt.count {
				t.Fatalf("expected %d events, got %d", tt.count, len(events))
			}
			if tt.count == 1 && events[0].Type != tt.want {
				t.Errorf("type = %s, want %s", events[0].Type, tt.want)
			}
		})
	}
}

func TestSESWebhookHandler_InvalidPayload(t *testing.T) {
	tests := []string{
		`not json`,
		`{"Type":"Notification","Message":"{broken"}`,
	}
	for _, body := range tests {
		w := httptest.NewRecorder()
		SESWebhookHandler(&mockRecorder{}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q: expected status 400, got %d", body, w.Code)
		}
	}
}

// --- Mailgun Webhook Tests ---

func TestMailgunWebhookHandler_EventMapping(t *testing.T) {
	tests := []struct {
		name     string
		event    string
		severity string
		want     domain.EventType
		count    int
	}{
		{"permanent failure", "failed", "permanent", domain.EventBounce, 1},
		{"temporary failure", "failed", "temporary", "", 0},
		{"complaint", "complained", "", domain.EventUnsubscribe, 1},
		{"unsubscribe", "unsubscribed", "", domain.EventUnsubscribe, 1},
		{"open", "opened", "", domain.EventOpen, 1},
		{"click", "clicked", "", domain.EventClick, 1},
		{"delivered", "delivered", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			body, _ := json.Marshal(map[string]any{
				"event-data": map[string]any{
					"event":           tt.event,
					"severity":        tt.severity,
					"recipient":       "a@example.com",
					"user-variables":  map[string]string{"campaign_id": "c1", "recipient_id": "r1"},
					"message":         map[string]any{"headers": map[string]string{"message-id": "mg-1"}},
					"delivery-status": map[string]any{"message": "mailbox full", "code": 552},
				},
			})
			w := httptest.NewRecorder()

			MailgunWebhookHandler(rec).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mailgun", strings.NewReader(string(body))))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			events := rec.recorded()
			if len(events) != tt.count {
				t.Fatalf("expected %d events, got %d", tt.count, len(events))
			}
			if tt.count == 1 {
				ev := events[0]
				if ev.Type != tt.want || ev.CampaignID != "c1" || ev.RecipientID != "r1" {
					t.Errorf("unexpected event: %+v", ev)
				}
				if ev.Payload["provider_message_id"] != "mg-1" {
					t.Errorf("unexpected payload: %v", ev.Payload)
				}
			}
		})
	}
}

func TestMailgunWebhookHandler_InvalidPayload(t *testing.T) {
	w := httptest.NewRecorder()
	MailgunWebhookHandler(&mockRecorder{}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}
