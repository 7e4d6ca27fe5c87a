package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/personalize"
)

func newTestRouter(keys map[string]string) (http.Handler, *mockRecorder) {
	rec := &mockRecorder{}
	deps := Dependencies{
		Delivery: &mockDelivery{deliverFn: func(context.Context, *delivery.Request) (*delivery.Outcome, error) {
			return &delivery.Outcome{Result: &dispatch.Result{Sent: 1, Status: domain.CampaignSent}}, nil
		}},
		Campaigns: &mockCampaigns{previewFn: func(context.Context, string, string, map[string]string) (*personalize.PreviewResult, error) {
			return &personalize.PreviewResult{Subject: "Hi"}, nil
		}},
		Tracking:       rec,
		Reports:        &mockReports{campaign: &domain.Campaign{ID: "c1", Status: domain.CampaignDraft}},
		DB:             mockPinger{},
		APIKeys:        keys,
		AllowedOrigins: []string{"https://console.example.com"},
	}
	return NewRouter(deps, zerolog.Nop()), rec
}

func TestRouter_OperatorRoutesRequireKey(t *testing.T) {
	router, _ := newTestRouter(map[string]string{"ops": "secret"})

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/campaigns/c1/dispatch"},
		{http.MethodPost, "/api/v1/campaigns/c1/preview"},
		{http.MethodGet, "/api/v1/campaigns/c1/report"},
		{http.MethodPost, "/api/v1/test-send"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c1/dispatch", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authorized dispatch: expected status 200, got %d", rec.Code)
	}
}

func TestRouter_NoKeysDisablesAuth(t *testing.T) {
	router, _ := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1/report", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, tracker := newTestRouter(map[string]string{"ops": "secret"})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/api/v1/track?campaignId=c1&recipientId=r1", http.StatusOK},
		{http.MethodGet, "/api/v1/unsubscribe?token=r1", http.StatusOK},
		{http.MethodPost, "/api/v1/webhooks/sendgrid", http.StatusOK},
	}

	for _, tt := range tests {
		var body *strings.Reader
		if tt.method == http.MethodPost {
			body = strings.NewReader(`[]`)
		} else {
			body = strings.NewReader("")
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, body))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}

	if len(tracker.recorded()) != 1 {
		t.Errorf("expected the beacon hit to be recorded, got %d events", len(tracker.recorded()))
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)

	// Generate at least one labelled request first.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `api_requests_total{method="GET",path="/healthz",status="200"}`) {
		t.Error("expected api_requests_total for /healthz in metrics output")
	}
}

func TestRouter_ArchiveRouteOptional(t *testing.T) {
	router, _ := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1/recipients/r1/message", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 without an archive, got %d", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	router, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/campaigns/c1/report", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
