package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// DemoCampaignName names the campaign SeedDemoCampaign creates.
const DemoCampaignName = "demo-welcome"

const (
	demoSubject = "Welcome, {{firstName}}"
	demoContent = `<html><body>
<p>Hi {{fullName}},</p>
<p>Thanks for joining the {{plan}} plan.</p>
<p><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>
</body></html>`
)

// SeedDemoCampaign ensures a draft demo campaign exists with recipients
// attached. It is idempotent: when the campaign already exists it is
// returned unchanged.
func SeedDemoCampaign(ctx context.Context, db *storage.DB, log zerolog.Logger, recipients []domain.Recipient) (*domain.Campaign, error) {
	existing, err := db.Queries().GetCampaignByName(ctx, DemoCampaignName)
	if err == nil {
		log.Info().Str("campaign_id", existing.ID).Msg("demo campaign already exists, skipping seed")
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	var campaign *domain.Campaign
	err = db.InTx(ctx, func(q *storage.Queries) error {
		tmpl, err := q.CreateTemplate(ctx, domain.Template{
			Name:    DemoCampaignName,
			Subject: demoSubject,
			Content: demoContent,
		})
		if err != nil {
			return err
		}

		campaign, err = q.CreateCampaign(ctx, domain.Campaign{
			Name:       DemoCampaignName,
			TemplateID: &tmpl.ID,
		})
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(recipients))
		for _, r := range recipients {
			saved, err := q.UpsertRecipient(ctx, r)
			if err != nil {
				return err
			}
			ids = append(ids, saved.ID)
		}
		_, err = q.AddCampaignRecipients(ctx, campaign.ID, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("seed demo campaign: %w", err)
	}

	log.Info().
		Str("campaign_id", campaign.ID).
		Int("recipients", len(recipients)).
		Msg("demo campaign seeded")
	return campaign, nil
}

// DemoRecipients returns n sample recipients at example.com.
func DemoRecipients(n int) []domain.Recipient {
	plans := []string{"free", "pro", "team"}
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{
			Email:     fmt.Sprintf("demo%d@example.com", i+1),
			FirstName: fmt.Sprintf("Demo%d", i+1),
			LastName:  "User",
			Metadata:  map[string]string{"plan": plans[i%len(plans)]},
		}
	}
	return out
}
