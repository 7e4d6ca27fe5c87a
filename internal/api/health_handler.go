package api

import (
	"context"
	"net/http"

	"github.com/sungwon/campaign-dispatch/internal/provider"
)

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransportStatus reports the last observed delivery transport state.
type TransportStatus interface {
	Status() provider.HealthStatus
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Checks database connectivity via ping and, when configured, the transport
// state. Returns 200 if healthy, 503 with Retry-After header if unhealthy.
func ReadyzHandler(db Pinger, transport TransportStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		resp := map[string]any{"status": "ok"}
		if transport != nil {
			st := transport.Status()
			if !st.Healthy {
				w.Header().Set("Retry-After", "30")
				respondJSON(w, http.StatusServiceUnavailable, map[string]any{
					"error":     "transport unavailable",
					"transport": st,
				})
				return
			}
			resp["transport"] = st
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
