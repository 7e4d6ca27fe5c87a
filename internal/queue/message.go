package queue

import (
	"time"

	"github.com/google/uuid"
)

// Request asks a dispatch worker to run one campaign.
type Request struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRequest creates a Request with a generated UUID and current timestamp.
func NewRequest(campaignID string) *Request {
	return &Request{
		ID:          uuid.New().String(),
		CampaignID:  campaignID,
		RequestedAt: time.Now().UTC(),
	}
}
