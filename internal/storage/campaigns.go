package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/domain"
)

const campaignColumns = `id, name, subject, content, template_id, status,
	scheduled_at, started_at, sent_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	var status string
	err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.Content, &c.TemplateID, &status,
		&c.ScheduledAt, &c.StartedAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CampaignStatus(status)
	return &c, nil
}

const getCampaign = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

func (q *Queries) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(q.db.QueryRow(ctx, getCampaign, id))
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, notFound(err))
	}
	return c, nil
}

const getCampaignByName = `SELECT ` + campaignColumns + ` FROM campaigns
WHERE name = $1 ORDER BY created_at LIMIT 1`

// GetCampaignByName returns the oldest campaign with the given name.
func (q *Queries) GetCampaignByName(ctx context.Context, name string) (*domain.Campaign, error) {
	c, err := scanCampaign(q.db.QueryRow(ctx, getCampaignByName, name))
	if err != nil {
		return nil, fmt.Errorf("get campaign %q: %w", name, notFound(err))
	}
	return c, nil
}

const getTemplate = `SELECT id, name, subject, content, created_at FROM templates WHERE id = $1`

func (q *Queries) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	err := q.db.QueryRow(ctx, getTemplate, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Content, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, notFound(err))
	}
	return &t, nil
}

const claimCampaign = `UPDATE campaigns
SET status = 'sending', started_at = $2, updated_at = now()
WHERE id = $1 AND status IN ('draft', 'scheduled')`

// ClaimCampaign moves a draft or scheduled campaign to sending. It reports
// false when the campaign was not in a dispatchable state, which is how
// concurrent dispatchers of the same campaign are told apart.
func (q *Queries) ClaimCampaign(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, claimCampaign, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("claim campaign %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

const finishCampaign = `UPDATE campaigns
SET status = $2,
    sent_at = CASE WHEN $2 = 'sent' THEN $3::timestamptz ELSE sent_at END,
    updated_at = now()
WHERE id = $1 AND status = 'sending'`

// FinishCampaign moves a sending campaign to a terminal status.
func (q *Queries) FinishCampaign(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	if !domain.CampaignSending.CanTransition(status) {
		return fmt.Errorf("finish campaign %s: %q is not a terminal status", id, status)
	}
	tag, err := q.db.Exec(ctx, finishCampaign, id, string(status), at)
	if err != nil {
		return fmt.Errorf("finish campaign %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish campaign %s: %w", id, ErrConflict)
	}
	return nil
}

const listDueCampaigns = `SELECT id FROM campaigns
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at`

// ListDueCampaigns returns the ids of scheduled campaigns whose time has come.
func (q *Queries) ListDueCampaigns(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx, listDueCampaigns, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const createTemplate = `INSERT INTO templates (name, subject, content)
VALUES ($1, $2, $3)
RETURNING id, name, subject, content, created_at`

func (q *Queries) CreateTemplate(ctx context.Context, t domain.Template) (*domain.Template, error) {
	var out domain.Template
	err := q.db.QueryRow(ctx, createTemplate, t.Name, t.Subject, t.Content).
		Scan(&out.ID, &out.Name, &out.Subject, &out.Content, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &out, nil
}

const createCampaign = `INSERT INTO campaigns (name, subject, content, template_id, status, scheduled_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + campaignColumns

// CreateCampaign inserts a draft or scheduled campaign.
func (q *Queries) CreateCampaign(ctx context.Context, c domain.Campaign) (*domain.Campaign, error) {
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	if !c.Status.Editable() {
		return nil, fmt.Errorf("create campaign: initial status %q not allowed", c.Status)
	}
	out, err := scanCampaign(q.db.QueryRow(ctx, createCampaign,
		c.Name, c.Subject, c.Content, c.TemplateID, string(c.Status), c.ScheduledAt))
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return out, nil
}
