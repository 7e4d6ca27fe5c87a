package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/domain"
)

const getRecipient = `SELECT id, email, first_name, last_name, metadata, status, created_at
FROM recipients WHERE id = $1`

func (q *Queries) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	var r domain.Recipient
	var status string
	err := q.db.QueryRow(ctx, getRecipient, id).
		Scan(&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.Metadata, &status, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get recipient %s: %w", id, notFound(err))
	}
	r.Status = domain.SubscriptionStatus(status)
	return &r, nil
}

const upsertRecipient = `INSERT INTO recipients (email, first_name, last_name, metadata)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    metadata = EXCLUDED.metadata,
    updated_at = now()
RETURNING id, email, first_name, last_name, metadata, status, created_at`

// UpsertRecipient inserts a recipient or refreshes the profile of the one
// with the same normalized email. Subscription status is left untouched.
func (q *Queries) UpsertRecipient(ctx context.Context, r domain.Recipient) (*domain.Recipient, error) {
	var out domain.Recipient
	var status string
	err := q.db.QueryRow(ctx, upsertRecipient,
		domain.NormalizeEmail(r.Email), r.FirstName, r.LastName, orEmpty(r.Metadata)).
		Scan(&out.ID, &out.Email, &out.FirstName, &out.LastName, &out.Metadata, &status, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert recipient %s: %w", r.Email, err)
	}
	out.Status = domain.SubscriptionStatus(status)
	return &out, nil
}

const updateRecipientStatus = `UPDATE recipients SET status = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateRecipientStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error {
	tag, err := q.db.Exec(ctx, updateRecipientStatus, id, string(status))
	if err != nil {
		return fmt.Errorf("update recipient %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update recipient %s status: %w", id, ErrNotFound)
	}
	return nil
}

const addCampaignRecipient = `INSERT INTO campaign_recipients (campaign_id, recipient_id)
VALUES ($1, $2)
ON CONFLICT (campaign_id, recipient_id) DO NOTHING`

// AddCampaignRecipients attaches recipients to a campaign as pending rows.
// Recipients already attached keep their current row.
func (q *Queries) AddCampaignRecipients(ctx context.Context, campaignID string, recipientIDs []string) (int, error) {
	added := 0
	for _, rid := range recipientIDs {
		tag, err := q.db.Exec(ctx, addCampaignRecipient, campaignID, rid)
		if err != nil {
			return added, fmt.Errorf("add recipient %s to campaign %s: %w", rid, campaignID, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

const listPendingRecipients = `SELECT cr.campaign_id, cr.recipient_id, cr.status, cr.sent_at, cr.error,
       r.id, r.email, r.first_name, r.last_name, r.metadata, r.status, r.created_at
FROM campaign_recipients cr
JOIN recipients r ON r.id = cr.recipient_id
WHERE cr.campaign_id = $1 AND cr.status = 'pending'
ORDER BY r.email`

// ListPendingRecipients returns the pending rows of a campaign joined with
// their recipients.
func (q *Queries) ListPendingRecipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	rows, err := q.db.Query(ctx, listPendingRecipients, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients of %s: %w", campaignID, err)
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		var cr domain.CampaignRecipient
		var rowStatus, subStatus string
		if err := rows.Scan(&cr.CampaignID, &cr.RecipientID, &rowStatus, &cr.SentAt, &cr.Error,
			&cr.Recipient.ID, &cr.Recipient.Email, &cr.Recipient.FirstName, &cr.Recipient.LastName,
			&cr.Recipient.Metadata, &subStatus, &cr.Recipient.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending recipient: %w", err)
		}
		cr.Status = domain.DeliveryStatus(rowStatus)
		cr.Recipient.Status = domain.SubscriptionStatus(subStatus)
		out = append(out, cr)
	}
	return out, rows.Err()
}

const markRecipient = `UPDATE campaign_recipients
SET status = $3, sent_at = $4, error = $5, updated_at = now()
WHERE campaign_id = $1 AND recipient_id = $2 AND status = 'pending'`

// MarkRecipient moves a pending row to a terminal delivery status. It
// reports false when the row was no longer pending; terminal rows are
// never rewritten.
func (q *Queries) MarkRecipient(ctx context.Context, campaignID, recipientID string, status domain.DeliveryStatus, at time.Time, errText string) (bool, error) {
	if !domain.DeliveryPending.CanTransition(status) {
		return false, fmt.Errorf("mark recipient %s: %q is not a terminal status", recipientID, status)
	}
	var sentAt *time.Time
	if status == domain.DeliverySent {
		sentAt = &at
	}
	tag, err := q.db.Exec(ctx, markRecipient, campaignID, recipientID, string(status), sentAt, errText)
	if err != nil {
		return false, fmt.Errorf("mark recipient %s: %w", recipientID, err)
	}
	return tag.RowsAffected() == 1, nil
}

const skipPendingRecipients = `UPDATE campaign_recipients
SET status = 'skipped', error = $2, updated_at = now()
WHERE campaign_id = $1 AND status = 'pending'`

// SkipPendingRecipients marks every row still pending as skipped. Used when
// a run stops before reaching them.
func (q *Queries) SkipPendingRecipients(ctx context.Context, campaignID, reason string) (int, error) {
	tag, err := q.db.Exec(ctx, skipPendingRecipients, campaignID, reason)
	if err != nil {
		return 0, fmt.Errorf("skip pending recipients of %s: %w", campaignID, err)
	}
	return int(tag.RowsAffected()), nil
}

const countCampaignRecipients = `SELECT status, count(*) FROM campaign_recipients
WHERE campaign_id = $1 GROUP BY status`

// CountCampaignRecipients returns the number of rows per delivery status.
func (q *Queries) CountCampaignRecipients(ctx context.Context, campaignID string) (map[domain.DeliveryStatus]int, error) {
	rows, err := q.db.Query(ctx, countCampaignRecipients, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count recipients of %s: %w", campaignID, err)
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan recipient count: %w", err)
		}
		counts[domain.DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}
