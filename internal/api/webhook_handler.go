package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

// Outgoing messages carry these tags; providers echo them back in webhooks.
const (
	tagCampaignID  = "campaign_id"
	tagRecipientID = "recipient_id"
)

// SendGridWebhookHandler handles POST /api/v1/webhooks/sendgrid.
// SendGrid sends an array of event objects with custom args at the top level.
func SendGridWebhookHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var events []sendGridEvent
		if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
			log.Warn().Err(err).Msg("sendgrid webhook: invalid payload")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		for _, event := range events {
			eventType := normalizeSendGridEvent(event.Event)
			if eventType == "" {
				continue
			}
			recordWebhookEvent(r.Context(), rec, "sendgrid", tracking.Event{
				CampaignID:  event.CampaignID,
				RecipientID: event.RecipientID,
				Type:        eventType,
				Payload: compactPayload(map[string]string{
					"provider":            "sendgrid",
					"event":               event.Event,
					"reason":              event.Reason,
					"url":                 event.URL,
					"provider_message_id": event.SGMessageID,
				}),
			})
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SESWebhookHandler handles POST /api/v1/webhooks/ses.
// AWS SES publishes through SNS; both the SNS envelope and a bare SES event
// are accepted. Campaign and recipient ids come from the message tags.
func SESWebhookHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var envelope snsEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			log.Warn().Err(err).Msg("ses webhook: invalid payload")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		notification := envelope.sesNotification
		switch envelope.Type {
		case "SubscriptionConfirmation":
			log.Info().Str("topic_arn", envelope.TopicArn).Str("subscribe_url", envelope.SubscribeURL).
				Msg("ses webhook: SNS subscription needs confirmation")
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		case "Notification":
			if err := json.Unmarshal([]byte(envelope.Message), &notification); err != nil {
				log.Warn().Err(err).Msg("ses webhook: invalid SNS message")
				respondError(w, http.StatusBadRequest, "invalid SNS message")
				return
			}
		}

		kind := notification.kind()
		eventType := normalizeSESEvent(kind, notification.Bounce)
		if eventType == "" {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		payload := map[string]string{
			"provider":            "ses",
			"event":               kind,
			"provider_message_id": notification.Mail.MessageID,
		}
		if notification.Bounce != nil {
			payload["reason"] = notification.Bounce.BounceType + ": " + notification.Bounce.BounceSubType
		}
		if notification.Click != nil {
			payload["url"] = notification.Click.Link
		}

		recordWebhookEvent(r.Context(), rec, "ses", tracking.Event{
			CampaignID:  notification.Mail.tag(tagCampaignID),
			RecipientID: notification.Mail.tag(tagRecipientID),
			Type:        eventType,
			Payload:     compactPayload(payload),
		})

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// MailgunWebhookHandler handles POST /api/v1/webhooks/mailgun.
// Mailgun sends event data wrapped in an "event-data" field; message
// variables come back as "user-variables".
func MailgunWebhookHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var payload mailgunWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("mailgun webhook: invalid payload")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		event := payload.EventData
		eventType := normalizeMailgunEvent(event.Event, event.Severity)
		if eventType == "" {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		recordWebhookEvent(r.Context(), rec, "mailgun", tracking.Event{
			CampaignID:  event.UserVariables[tagCampaignID],
			RecipientID: event.UserVariables[tagRecipientID],
			Type:        eventType,
			Payload: compactPayload(map[string]string{
				"provider":            "mailgun",
				"event":               event.Event,
				"reason":              event.DeliveryStatus.Message,
				"url":                 event.URL,
				"provider_message_id": event.Message.Headers.MessageID,
			}),
		})

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// --- SendGrid event types ---

type sendGridEvent struct {
	Email       string `json:"email"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	Reason      string `json:"reason"`
	URL         string `json:"url"`
	CampaignID  string `json:"campaign_id"`
	RecipientID string `json:"recipient_id"`
}

func normalizeSendGridEvent(event string) domain.EventType {
	switch event {
	case "bounce", "blocked":
		return domain.EventBounce
	case "spamreport", "unsubscribe", "group_unsubscribe":
		return domain.EventUnsubscribe
	case "open":
		return domain.EventOpen
	case "click":
		return domain.EventClick
	default:
		return ""
	}
}

// --- SES event types ---

type snsEnvelope struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	TopicArn     string `json:"TopicArn"`
	SubscribeURL string `json:"SubscribeURL"`
	sesNotification
}

type sesNotification struct {
	// NotificationType is set by SES notifications, EventType by event publishing.
	NotificationType string     `json:"notificationType"`
	EventType        string     `json:"eventType"`
	Mail             sesMail    `json:"mail"`
	Bounce           *sesBounce `json:"bounce,omitempty"`
	Click            *sesClick  `json:"click,omitempty"`
}

func (n sesNotification) kind() string {
	if n.EventType != "" {
		return n.EventType
	}
	return n.NotificationType
}

type sesMail struct {
	MessageID string              `json:"messageId"`
	Tags      map[string][]string `json:"tags"`
}

func (m sesMail) tag(name string) string {
	if v := m.Tags[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

type sesBounce struct {
	BounceType    string `json:"bounceType"`
	BounceSubType string `json:"bounceSubType"`
	FeedbackID    string `json:"feedbackId"`
}

type sesClick struct {
	Link string `json:"link"`
}

// normalizeSESEvent maps an SES event to a tracking event. Transient bounces
// are ignored; only permanent ones stop future mail.
func normalizeSESEvent(kind string, bounce *sesBounce) domain.EventType {
	switch kind {
	case "Bounce":
		if bounce != nil && bounce.BounceType == "Transient" {
			return ""
		}
		return domain.EventBounce
	case "Complaint", "Subscription":
		return domain.EventUnsubscribe
	case "Open":
		return domain.EventOpen
	case "Click":
		return domain.EventClick
	default:
		return ""
	}
}

// --- Mailgun event types ---

type mailgunWebhookPayload struct {
	EventData mailgunEventData `json:"event-data"`
}

type mailgunEventData struct {
	Event          string                `json:"event"`
	Severity       string                `json:"severity"`
	Recipient      string                `json:"recipient"`
	URL            string                `json:"url"`
	UserVariables  map[string]string     `json:"user-variables"`
	Message        mailgunMessage        `json:"message"`
	DeliveryStatus mailgunDeliveryStatus `json:"delivery-status"`
}

type mailgunMessage struct {
	Headers mailgunHeaders `json:"headers"`
}

type mailgunHeaders struct {
	MessageID string `json:"message-id"`
}

type mailgunDeliveryStatus struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func normalizeMailgunEvent(event, severity string) domain.EventType {
	switch event {
	case "failed":
		if severity == "temporary" {
			return ""
		}
		return domain.EventBounce
	case "complained", "unsubscribed":
		return domain.EventUnsubscribe
	case "opened":
		return domain.EventOpen
	case "clicked":
		return domain.EventClick
	default:
		return ""
	}
}

// --- Helpers ---

// recordWebhookEvent records ev and logs failures. Events without a
// recipient id, such as those of test sends, are dropped.
func recordWebhookEvent(ctx context.Context, rec EventRecorder, providerName string, ev tracking.Event) {
	log := logger.FromContext(ctx).With().
		Str("provider", providerName).
		Str("campaign_id", ev.CampaignID).
		Str("recipient_id", ev.RecipientID).
		Str("event_type", string(ev.Type)).
		Logger()

	if ev.RecipientID == "" {
		log.Debug().Msg("webhook event without recipient tag ignored")
		return
	}

	if _, err := rec.Record(ctx, ev); err != nil {
		if errors.Is(err, tracking.ErrUnknownRecipient) {
			log.Warn().Msg("webhook event for unknown recipient")
			return
		}
		log.Error().Err(err).Msg("webhook event not recorded")
	}
}

// compactPayload drops empty values.
func compactPayload(m map[string]string) map[string]string {
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			delete(m, k)
		}
	}
	return m
}
