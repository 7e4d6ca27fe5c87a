// Package worker turns queued dispatch requests into dispatch runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/queue"
)

// dispatcher runs one campaign.
type dispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (dispatch.Result, error)
}

// Handler implements queue.Handler. Requests for campaigns that are no
// longer dispatchable are dropped quietly; a request is never retried.
type Handler struct {
	dispatcher dispatcher
	log        zerolog.Logger
}

// NewHandler creates a Handler that dispatches queued campaigns.
func NewHandler(d dispatcher, log zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		log:        log,
	}
}

// Handle implements queue.Handler.
func (h *Handler) Handle(ctx context.Context, req *queue.Request) error {
	if req.CampaignID == "" {
		return fmt.Errorf("request %s has no campaign id", req.ID)
	}

	log := h.log.With().
		Str("request_id", req.ID).
		Str("campaign_id", req.CampaignID).
		Logger()
	ctx = logger.WithCorrelationID(logger.WithLogger(ctx, log), req.ID)

	if !req.RequestedAt.IsZero() {
		log.Debug().Dur("queued_for", time.Since(req.RequestedAt)).Msg("dispatch request received")
	}

	res, err := h.dispatcher.Dispatch(ctx, req.CampaignID)
	switch {
	case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrEmptyAudience):
		// Dispatched by an earlier request or by the scheduler.
		log.Info().Err(err).Msg("dispatch request dropped")
		return nil
	case err != nil:
		return fmt.Errorf("dispatch campaign %s: %w", req.CampaignID, err)
	}

	log.Info().
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("dispatch request completed")
	return nil
}
