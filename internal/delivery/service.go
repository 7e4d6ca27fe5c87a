// Package delivery starts campaign dispatches on behalf of the API, either
// inline or by handing them to the dispatch worker through the request queue.
package delivery

import (
	"context"

	"github.com/sungwon/campaign-dispatch/internal/dispatch"
)

// Service starts a dispatch run for a campaign. Two implementations exist:
// SyncService (run inline) and AsyncService (enqueue for the dispatch worker).
type Service interface {
	Deliver(ctx context.Context, req *Request) (*Outcome, error)
}

// Request identifies the campaign to dispatch.
type Request struct {
	CampaignID    string
	CorrelationID string
}

// Outcome is what the caller learns once Deliver returns. Result is set for
// inline runs, RequestID for queued ones.
type Outcome struct {
	Queued    bool             `json:"queued"`
	RequestID string           `json:"request_id,omitempty"`
	Result    *dispatch.Result `json:"result,omitempty"`
}

// Dispatcher is the part of dispatch.Dispatcher the services need.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (dispatch.Result, error)
	Check(ctx context.Context, campaignID string) error
}
