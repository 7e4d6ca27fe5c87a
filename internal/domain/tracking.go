package domain

import "time"

// EventType is the kind of tracked recipient interaction.
type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventBounce      EventType = "bounce"
	EventUnsubscribe EventType = "unsubscribe"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventOpen, EventClick, EventBounce, EventUnsubscribe:
		return true
	}
	return false
}

// TrackingEvent is an immutable, append-only record of a recipient interaction.
type TrackingEvent struct {
	ID          string            `json:"id"`
	CampaignID  string            `json:"campaign_id"`
	RecipientID string            `json:"recipient_id"`
	Type        EventType         `json:"event_type"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
