package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/queue"
)

// AsyncService enqueues dispatch requests for the dispatch-worker process.
// Preconditions are checked before enqueueing so that the caller still
// learns about unknown or already sent campaigns.
type AsyncService struct {
	dispatcher Dispatcher
	enqueuer   queue.Enqueuer
	log        zerolog.Logger
}

// NewAsyncService creates an AsyncService backed by the given Enqueuer.
func NewAsyncService(dispatcher Dispatcher, enqueuer queue.Enqueuer, log zerolog.Logger) *AsyncService {
	return &AsyncService{
		dispatcher: dispatcher,
		enqueuer:   enqueuer,
		log:        log,
	}
}

// Deliver checks the campaign and publishes a dispatch request.
func (a *AsyncService) Deliver(ctx context.Context, req *Request) (*Outcome, error) {
	if err := a.dispatcher.Check(ctx, req.CampaignID); err != nil {
		return nil, err
	}

	msg := queue.NewRequest(req.CampaignID)
	entryID, err := a.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		a.log.Error().Err(err).
			Str("campaign_id", req.CampaignID).
			Msg("failed to enqueue dispatch request")
		return nil, fmt.Errorf("enqueue dispatch request: %w", err)
	}

	a.log.Info().
		Str("campaign_id", req.CampaignID).
		Str("request_id", msg.ID).
		Str("entry_id", entryID).
		Str("correlation_id", req.CorrelationID).
		Msg("dispatch request enqueued")

	return &Outcome{Queued: true, RequestID: msg.ID}, nil
}
