package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/metrics"
	"github.com/sungwon/campaign-dispatch/internal/provider"
)

// Tracker owns every status write of one dispatch run and keeps its
// counters. It is safe for concurrent use by the run's workers.
//
// Writes are issued on a context detached from cancellation so that an
// outcome is recorded even while the run is being cancelled.
type Tracker struct {
	store      Store
	campaignID string
	now        func() time.Time
	log        zerolog.Logger

	mu       sync.Mutex
	provider string
	sent     int
	failed   int
	skipped  int
}

// NewTracker creates a Tracker for campaignID.
func NewTracker(store Store, campaignID string, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		campaignID: campaignID,
		now:        time.Now,
		provider:   "none",
		log:        log,
	}
}

// SetProvider names the transport used for metric labels.
func (t *Tracker) SetProvider(name string) {
	t.mu.Lock()
	t.provider = name
	t.mu.Unlock()
}

// Begin claims the campaign by moving it to sending. ErrInvalidState is
// returned when the campaign is no longer draft or scheduled.
func (t *Tracker) Begin(ctx context.Context) error {
	ok, err := t.store.ClaimCampaign(context.WithoutCancel(ctx), t.campaignID, t.now())
	if err != nil {
		return fmt.Errorf("claim campaign: %w", err)
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// RecordSent marks the recipient sent.
func (t *Tracker) RecordSent(ctx context.Context, recipientID string) {
	t.mark(ctx, recipientID, domain.DeliverySent, "")
}

// RecordFailed marks the recipient failed with the classified error text.
func (t *Tracker) RecordFailed(ctx context.Context, recipientID string, sendErr error) {
	t.mark(ctx, recipientID, domain.DeliveryFailed, provider.Describe(sendErr))
}

// RecordSkipped marks the recipient skipped with the given reason.
func (t *Tracker) RecordSkipped(ctx context.Context, recipientID, reason string) {
	t.mark(ctx, recipientID, domain.DeliverySkipped, reason)
}

// SkipRemaining marks every row still pending as skipped.
func (t *Tracker) SkipRemaining(ctx context.Context, reason string) {
	n, err := t.store.SkipPendingRecipients(context.WithoutCancel(ctx), t.campaignID, reason)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to skip remaining recipients")
		return
	}

	t.mu.Lock()
	t.skipped += n
	name := t.provider
	t.mu.Unlock()

	if n > 0 {
		metrics.DispatchMessagesTotal.WithLabelValues(name, string(domain.DeliverySkipped)).Add(float64(n))
		t.log.Warn().Int("count", n).Str("reason", reason).Msg("remaining recipients skipped")
	}
}

// Finish moves the campaign from sending to its terminal status.
func (t *Tracker) Finish(ctx context.Context, status domain.CampaignStatus) error {
	if err := t.store.FinishCampaign(context.WithoutCancel(ctx), t.campaignID, status, t.now()); err != nil {
		return fmt.Errorf("finish campaign as %s: %w", status, err)
	}
	return nil
}

// Counts returns the outcome counters recorded so far.
func (t *Tracker) Counts() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Result{Sent: t.sent, Failed: t.failed, Skipped: t.skipped}
}

// mark persists one recipient outcome. Counters and metrics only move when
// the pending row was actually written, so Counts matches the store.
func (t *Tracker) mark(ctx context.Context, recipientID string, status domain.DeliveryStatus, errText string) {
	written, err := t.store.MarkRecipient(context.WithoutCancel(ctx), t.campaignID, recipientID, status, t.now(), errText)
	if err != nil {
		t.log.Error().Err(err).
			Str("recipient_id", recipientID).
			Str("status", string(status)).
			Msg("failed to record recipient status")
		return
	}
	if !written {
		t.log.Warn().
			Str("recipient_id", recipientID).
			Str("status", string(status)).
			Msg("recipient row was no longer pending")
		return
	}

	t.mu.Lock()
	switch status {
	case domain.DeliverySent:
		t.sent++
	case domain.DeliveryFailed:
		t.failed++
	case domain.DeliverySkipped:
		t.skipped++
	}
	name := t.provider
	t.mu.Unlock()

	metrics.DispatchMessagesTotal.WithLabelValues(name, string(status)).Inc()
}
