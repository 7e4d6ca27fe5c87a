package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/archive"
	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/personalize"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

// CampaignService renders previews and performs test sends.
type CampaignService interface {
	Preview(ctx context.Context, campaignID, recipientID string, vars map[string]string) (*personalize.PreviewResult, error)
	SendTest(ctx context.Context, ts dispatch.TestSend) (*provider.DeliveryResult, error)
}

// EventRecorder ingests tracking events.
type EventRecorder interface {
	Record(ctx context.Context, ev tracking.Event) (bool, error)
	Unsubscribe(ctx context.Context, token string) error
}

// ReportStore reads campaign delivery and engagement counts.
type ReportStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	CountCampaignRecipients(ctx context.Context, campaignID string) (map[domain.DeliveryStatus]int, error)
	CountTrackingEvents(ctx context.Context, campaignID string) (map[domain.EventType]int, error)
}

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Delivery  delivery.Service
	Campaigns CampaignService
	Tracking  EventRecorder
	Reports   ReportStore
	// Archive is optional; when nil, archived messages are not served.
	Archive archive.Archive
	DB      Pinger
	// Transport is optional; when set, /readyz also reports the provider state.
	Transport TransportStatus
	// TestSendLimiter is optional; when nil, test sends are not limited.
	TestSendLimiter *auth.RateLimiter
	// APIKeys maps operator names to bearer keys. Empty disables authentication.
	APIKeys        map[string]string
	AllowedOrigins []string
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(deps Dependencies, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(MetricsMiddleware)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-ID"},
			ExposedHeaders: []string{"X-Correlation-ID"},
			MaxAge:         300,
		}))
	}

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.DB, deps.Transport))
	r.Handle("/metrics", promhttp.Handler())

	// Recipient-facing endpoints (no auth required - hit from mail clients)
	r.Get("/api/v1/track", TrackHandler(deps.Tracking))
	r.Get("/api/v1/unsubscribe", UnsubscribeHandler(deps.Tracking))
	r.Post("/api/v1/unsubscribe", UnsubscribeHandler(deps.Tracking))

	// Webhook endpoints (no auth required - called by ESP providers)
	r.Post("/api/v1/webhooks/sendgrid", SendGridWebhookHandler(deps.Tracking))
	r.Post("/api/v1/webhooks/ses", SESWebhookHandler(deps.Tracking))
	r.Post("/api/v1/webhooks/mailgun", MailgunWebhookHandler(deps.Tracking))

	// Operator routes (auth required when keys are configured)
	r.Route("/api/v1", func(r chi.Router) {
		if len(deps.APIKeys) > 0 {
			r.Use(auth.BearerAuth(auth.StaticKeys(deps.APIKeys)))
		}

		r.Post("/campaigns/{id}/dispatch", DispatchHandler(deps.Delivery))
		r.Post("/campaigns/{id}/preview", PreviewHandler(deps.Campaigns))
		r.Get("/campaigns/{id}/report", ReportHandler(deps.Reports))
		if deps.Archive != nil {
			r.Get("/campaigns/{id}/recipients/{rid}/message", ArchivedMessageHandler(deps.Archive))
		}
		r.Post("/test-send", TestSendHandler(deps.Campaigns, deps.TestSendLimiter))
	})

	return r
}
