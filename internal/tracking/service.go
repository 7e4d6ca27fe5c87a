package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/metrics"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

var (
	// ErrInvalidEvent is returned for events with an unknown type or no recipient.
	ErrInvalidEvent = errors.New("tracking: invalid event")
	// ErrUnknownRecipient is returned when the event names a recipient that does not exist.
	ErrUnknownRecipient = errors.New("tracking: unknown recipient")
)

// Store is the persistence the tracking service needs.
type Store interface {
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	AppendTrackingEvent(ctx context.Context, ev *domain.TrackingEvent) error
	UpdateRecipientStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error
}

// Event is an inbound interaction report, typically a beacon hit.
type Event struct {
	CampaignID  string
	RecipientID string
	Type        domain.EventType
	Payload     map[string]string
}

// Service ingests tracking events.
type Service struct {
	store Store
	opens *cache.Cache
	log   zerolog.Logger
}

// NewService creates a tracking service. Repeated open beacons for the same
// campaign and recipient within dedupWindow are recorded once.
func NewService(store Store, dedupWindow time.Duration, log zerolog.Logger) *Service {
	if dedupWindow <= 0 {
		dedupWindow = time.Hour
	}
	return &Service{
		store: store,
		opens: cache.New(dedupWindow, 2*dedupWindow),
		log:   log.With().Str("component", "tracking").Logger(),
	}
}

// Record validates and stores ev. It reports false when ev was a duplicate
// open and nothing was written. Bounce and unsubscribe events also flip the
// recipient's subscription status.
func (s *Service) Record(ctx context.Context, ev Event) (bool, error) {
	if !ev.Type.Valid() || ev.RecipientID == "" {
		metrics.TrackingEventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return false, fmt.Errorf("%w: type=%q recipient=%q", ErrInvalidEvent, ev.Type, ev.RecipientID)
	}

	recipient, err := s.store.GetRecipient(ctx, ev.RecipientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.TrackingEventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
			return false, fmt.Errorf("%w: %s", ErrUnknownRecipient, ev.RecipientID)
		}
		return false, fmt.Errorf("load recipient: %w", err)
	}

	key := ev.CampaignID + "|" + ev.RecipientID
	if ev.Type == domain.EventOpen {
		if err := s.opens.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			metrics.TrackingEventsTotal.WithLabelValues(string(ev.Type), "duplicate").Inc()
			return false, nil
		}
	}

	te := &domain.TrackingEvent{
		CampaignID:  ev.CampaignID,
		RecipientID: ev.RecipientID,
		Type:        ev.Type,
		Payload:     ev.Payload,
	}
	if err := s.store.AppendTrackingEvent(ctx, te); err != nil {
		if ev.Type == domain.EventOpen {
			s.opens.Delete(key)
		}
		return false, fmt.Errorf("append event: %w", err)
	}
	metrics.TrackingEventsTotal.WithLabelValues(string(ev.Type), "recorded").Inc()

	if next, ok := subscriptionAfter(ev.Type); ok && recipient.Active() {
		if err := s.store.UpdateRecipientStatus(ctx, recipient.ID, next); err != nil {
			return true, fmt.Errorf("update recipient status: %w", err)
		}
		s.log.Info().
			Str("recipient_id", recipient.ID).
			Str("campaign_id", ev.CampaignID).
			Str("status", string(next)).
			Msg("recipient subscription changed")
	}

	return true, nil
}

// Unsubscribe handles an unsubscribe link. The token is the recipient id.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	_, err := s.Record(ctx, Event{RecipientID: token, Type: domain.EventUnsubscribe})
	return err
}

func subscriptionAfter(t domain.EventType) (domain.SubscriptionStatus, bool) {
	switch t {
	case domain.EventUnsubscribe:
		return domain.SubscriptionUnsubscribed, true
	case domain.EventBounce:
		return domain.SubscriptionBounced, true
	}
	return "", false
}
