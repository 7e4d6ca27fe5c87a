package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/logger"
)

type testSendRequest struct {
	CampaignID string            `json:"campaign_id"`
	Subject    string            `json:"subject"`
	Content    string            `json:"content"`
	To         string            `json:"to"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Metadata   map[string]string `json:"metadata"`
	Vars       map[string]string `json:"vars"`
}

type testSendResponse struct {
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// TestSendHandler handles POST /api/v1/test-send.
// Test sends go to a single address, carry no tracking and are limited per
// address when a limiter is configured.
func TestSendHandler(svc CampaignService, limiter *auth.RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req testSendRequest
		if err := decodeJSON(r, &req, false); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var errs []string
		addr, err := mail.ParseAddress(req.To)
		if err != nil {
			errs = append(errs, "to must be a valid email address")
		}
		if req.CampaignID == "" && strings.TrimSpace(req.Content) == "" {
			errs = append(errs, "campaign_id or content is required")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		if err := limiter.Allow(r.Context(), strings.ToLower(addr.Address)); err != nil {
			if errors.Is(err, auth.ErrRateLimited) {
				respondError(w, http.StatusTooManyRequests, "too many test sends to this address")
				return
			}
			// Fail open while Redis is unreachable.
			log.Warn().Err(err).Msg("test send rate limit check failed")
		}

		res, err := svc.SendTest(r.Context(), dispatch.TestSend{
			CampaignID: req.CampaignID,
			Subject:    req.Subject,
			Content:    req.Content,
			To:         req.To,
			Recipient: domain.Recipient{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Metadata:  req.Metadata,
			},
			Vars: req.Vars,
		})
		if err != nil {
			respondDispatchError(w, r, err, "test send failed")
			return
		}

		resp := testSendResponse{Status: "sent", SentAt: time.Now().UTC()}
		if res != nil {
			resp.ProviderMessageID = res.ProviderMessageID
			if !res.Timestamp.IsZero() {
				resp.SentAt = res.Timestamp
			}
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
