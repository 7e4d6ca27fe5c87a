package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SyncService runs dispatches inline and returns their result.
type SyncService struct {
	dispatcher Dispatcher
	log        zerolog.Logger
}

// NewSyncService creates a SyncService that dispatches inline.
func NewSyncService(dispatcher Dispatcher, log zerolog.Logger) *SyncService {
	return &SyncService{
		dispatcher: dispatcher,
		log:        log,
	}
}

// Deliver runs the dispatch to completion. A run that started always
// carries its Result, even when an error is returned with it.
func (s *SyncService) Deliver(ctx context.Context, req *Request) (*Outcome, error) {
	res, err := s.dispatcher.Dispatch(ctx, req.CampaignID)
	if res.Status == "" {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("dispatch %s: no run started", req.CampaignID)
	}

	if err != nil {
		s.log.Error().Err(err).
			Str("campaign_id", req.CampaignID).
			Str("correlation_id", req.CorrelationID).
			Str("status", string(res.Status)).
			Msg("dispatch run ended with error")
	} else {
		s.log.Info().
			Str("campaign_id", req.CampaignID).
			Str("correlation_id", req.CorrelationID).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("campaign dispatched")
	}
	return &Outcome{Result: &res}, err
}
