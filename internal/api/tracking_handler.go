package api

import (
	"errors"
	"net/http"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/logger"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackHandler handles GET /api/v1/track.
// The beacon always answers with the pixel so mail clients never show a
// broken image; invalid hits are only logged.
func TrackHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		q := r.URL.Query()

		ev := tracking.Event{
			CampaignID:  q.Get("campaignId"),
			RecipientID: q.Get("recipientId"),
			Type:        domain.EventType(q.Get("eventType")),
		}
		if ev.Type == "" {
			ev.Type = domain.EventOpen
		}
		if ua := r.UserAgent(); ua != "" {
			ev.Payload = map[string]string{"user_agent": ua}
		}

		if _, err := rec.Record(r.Context(), ev); err != nil {
			lvl := log.Warn()
			if !errors.Is(err, tracking.ErrInvalidEvent) && !errors.Is(err, tracking.ErrUnknownRecipient) {
				lvl = log.Error()
			}
			lvl.Err(err).
				Str("campaign_id", ev.CampaignID).
				Str("recipient_id", ev.RecipientID).
				Msg("tracking beacon not recorded")
		}

		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(transparentGIF)
	}
}

// UnsubscribeHandler handles GET and POST /api/v1/unsubscribe?token=.
// POST serves one-click unsubscribe from the List-Unsubscribe header.
func UnsubscribeHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			respondError(w, http.StatusBadRequest, "token is required")
			return
		}

		if err := rec.Unsubscribe(r.Context(), token); err != nil {
			if errors.Is(err, tracking.ErrUnknownRecipient) || errors.Is(err, tracking.ErrInvalidEvent) {
				respondError(w, http.StatusNotFound, "unknown unsubscribe token")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("recipient_id", token).Msg("unsubscribe failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
	}
}
