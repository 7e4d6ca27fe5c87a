package storage

import (
	"context"
	"fmt"

	"github.com/sungwon/campaign-dispatch/internal/domain"
)

const appendTrackingEvent = `INSERT INTO tracking_events (campaign_id, recipient_id, event_type, payload)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

// AppendTrackingEvent stores ev and fills in its id and creation time.
func (q *Queries) AppendTrackingEvent(ctx context.Context, ev *domain.TrackingEvent) error {
	err := q.db.QueryRow(ctx, appendTrackingEvent,
		ev.CampaignID, ev.RecipientID, string(ev.Type), orEmpty(ev.Payload)).
		Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append %s event: %w", ev.Type, err)
	}
	return nil
}

const countTrackingEvents = `SELECT event_type, count(*) FROM tracking_events
WHERE campaign_id = $1 GROUP BY event_type`

// CountTrackingEvents returns the number of events per type for a campaign.
func (q *Queries) CountTrackingEvents(ctx context.Context, campaignID string) (map[domain.EventType]int, error) {
	rows, err := q.db.Query(ctx, countTrackingEvents, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count events of %s: %w", campaignID, err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[domain.EventType(t)] = n
	}
	return counts, rows.Err()
}
