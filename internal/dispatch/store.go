package dispatch

import (
	"context"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/provider"
)

// Store is the record store a dispatch run reads from and writes to.
// Lookups of unknown ids return storage.ErrNotFound.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	ListPendingRecipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)
	ListDueCampaigns(ctx context.Context, now time.Time) ([]string, error)

	// ClaimCampaign moves a draft or scheduled campaign to sending. It
	// reports false when the campaign was not in a claimable state.
	ClaimCampaign(ctx context.Context, id string, startedAt time.Time) (bool, error)
	FinishCampaign(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error

	// MarkRecipient writes a terminal status for a pending row. It reports
	// false when the row was no longer pending.
	MarkRecipient(ctx context.Context, campaignID, recipientID string, status domain.DeliveryStatus, at time.Time, errText string) (bool, error)
	SkipPendingRecipients(ctx context.Context, campaignID, reason string) (int, error)
}

// TransportFactory builds the delivery transport for one run.
type TransportFactory func(ctx context.Context) (provider.Provider, error)

// StaticTransport returns a TransportFactory that always yields p.
func StaticTransport(p provider.Provider) TransportFactory {
	return func(context.Context) (provider.Provider, error) { return p, nil }
}
