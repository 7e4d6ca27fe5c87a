package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/campaign-dispatch/internal/archive"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/mimeparse"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// dispatchResponse is returned when a run started but ended with an error.
type dispatchResponse struct {
	Error  string           `json:"error"`
	Result *dispatch.Result `json:"result"`
}

// DispatchHandler handles POST /api/v1/campaigns/{id}/dispatch.
// Inline runs answer 200 with the run result; queued requests answer 202.
func DispatchHandler(svc delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID := chi.URLParam(r, "id")
		ctx := logger.WithCampaign(r.Context(), campaignID)
		log := logger.FromContext(ctx)

		out, err := svc.Deliver(ctx, &delivery.Request{
			CampaignID:    campaignID,
			CorrelationID: logger.CorrelationIDFromContext(ctx),
		})
		if err != nil {
			status := dispatchErrorStatus(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Msg("dispatch failed")
			}
			if out != nil && out.Result != nil {
				respondJSON(w, status, dispatchResponse{Error: err.Error(), Result: out.Result})
				return
			}
			respondError(w, status, err.Error())
			return
		}

		if out.Queued {
			respondJSON(w, http.StatusAccepted, out)
			return
		}
		respondJSON(w, http.StatusOK, out.Result)
	}
}

type previewRequest struct {
	RecipientID string            `json:"recipient_id"`
	Vars        map[string]string `json:"vars"`
}

// PreviewHandler handles POST /api/v1/campaigns/{id}/preview.
// The body is optional; without a recipient the content renders with empty fields.
func PreviewHandler(svc CampaignService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := decodeJSON(r, &req, true); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := svc.Preview(r.Context(), chi.URLParam(r, "id"), req.RecipientID, req.Vars)
		if err != nil {
			respondDispatchError(w, r, err, "preview failed")
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

type reportResponse struct {
	CampaignID string                        `json:"campaign_id"`
	Status     domain.CampaignStatus         `json:"status"`
	StartedAt  *time.Time                    `json:"started_at,omitempty"`
	SentAt     *time.Time                    `json:"sent_at,omitempty"`
	Deliveries map[domain.DeliveryStatus]int `json:"deliveries"`
	Events     map[domain.EventType]int      `json:"events"`
}

// ReportHandler handles GET /api/v1/campaigns/{id}/report.
func ReportHandler(store ReportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id := chi.URLParam(r, "id")

		c, err := store.GetCampaign(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "campaign not found")
				return
			}
			log.Error().Err(err).Str("campaign_id", id).Msg("failed to load campaign")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		deliveries, err := store.CountCampaignRecipients(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", id).Msg("failed to count deliveries")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		events, err := store.CountTrackingEvents(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", id).Msg("failed to count events")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusOK, reportResponse{
			CampaignID: c.ID,
			Status:     c.Status,
			StartedAt:  c.StartedAt,
			SentAt:     c.SentAt,
			Deliveries: deliveries,
			Events:     events,
		})
	}
}

// ArchivedMessageHandler handles GET /api/v1/campaigns/{id}/recipients/{rid}/message.
// It returns the decoded headers and bodies of the message as it was sent.
func ArchivedMessageHandler(store archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		campaignID, recipientID := chi.URLParam(r, "id"), chi.URLParam(r, "rid")

		raw, err := store.Get(r.Context(), campaignID, recipientID)
		if err != nil {
			if errors.Is(err, archive.ErrNotFound) {
				respondError(w, http.StatusNotFound, "message not archived")
				return
			}
			if errors.Is(err, archive.ErrInvalidKey) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).
				Str("campaign_id", campaignID).
				Str("recipient_id", recipientID).
				Msg("failed to read archived message")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		msg, err := mimeparse.Parse(raw)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", campaignID).Msg("archived message is not valid MIME")
			respondError(w, http.StatusInternalServerError, "archived message unreadable")
			return
		}
		respondJSON(w, http.StatusOK, msg)
	}
}
