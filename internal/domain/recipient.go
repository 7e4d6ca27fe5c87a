package domain

import (
	"strings"
	"time"
)

// SubscriptionStatus is a recipient's subscription state.
type SubscriptionStatus string

const (
	SubscriptionActive       SubscriptionStatus = "active"
	SubscriptionUnsubscribed SubscriptionStatus = "unsubscribed"
	SubscriptionBounced      SubscriptionStatus = "bounced"
)

// DeliveryStatus is the per-campaign delivery state of one recipient.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// CanTransition reports whether a delivery row may move from s to next.
// Only pending rows move; sent, failed and skipped are final.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	if s != DeliveryPending {
		return false
	}
	return next == DeliverySent || next == DeliveryFailed || next == DeliverySkipped
}

// IsTerminal reports whether s is a final delivery state.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySent || s == DeliveryFailed || s == DeliverySkipped
}

// Recipient is an addressable contact.
type Recipient struct {
	ID        string             `json:"id"`
	Email     string             `json:"email"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	Status    SubscriptionStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// FullName joins first and last name with a single space.
func (r *Recipient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// Active reports whether the recipient may receive mail.
func (r *Recipient) Active() bool {
	return r.Status == SubscriptionActive
}

// CampaignRecipient is the delivery state of one recipient within one campaign.
type CampaignRecipient struct {
	CampaignID  string         `json:"campaign_id"`
	RecipientID string         `json:"recipient_id"`
	Status      DeliveryStatus `json:"status"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Recipient   Recipient      `json:"recipient"`
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
