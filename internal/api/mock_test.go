package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/personalize"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

type mockDelivery struct {
	deliverFn func(ctx context.Context, req *delivery.Request) (*delivery.Outcome, error)
	lastReq   *delivery.Request
}

func (m *mockDelivery) Deliver(ctx context.Context, req *delivery.Request) (*delivery.Outcome, error) {
	m.lastReq = req
	return m.deliverFn(ctx, req)
}

type mockCampaigns struct {
	previewFn  func(ctx context.Context, campaignID, recipientID string, vars map[string]string) (*personalize.PreviewResult, error)
	sendTestFn func(ctx context.Context, ts dispatch.TestSend) (*provider.DeliveryResult, error)
	sent       []dispatch.TestSend
}

func (m *mockCampaigns) Preview(ctx context.Context, campaignID, recipientID string, vars map[string]string) (*personalize.PreviewResult, error) {
	return m.previewFn(ctx, campaignID, recipientID, vars)
}

func (m *mockCampaigns) SendTest(ctx context.Context, ts dispatch.TestSend) (*provider.DeliveryResult, error) {
	m.sent = append(m.sent, ts)
	if m.sendTestFn == nil {
		return &provider.DeliveryResult{ProviderMessageID: "test-1"}, nil
	}
	return m.sendTestFn(ctx, ts)
}

type mockRecorder struct {
	mu            sync.Mutex
	events        []tracking.Event
	recordErr     error
	unsubscribed  []string
	unsubscribeFn func(token string) error
}

func (m *mockRecorder) Record(_ context.Context, ev tracking.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return false, m.recordErr
	}
	m.events = append(m.events, ev)
	return true, nil
}

func (m *mockRecorder) Unsubscribe(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribeFn != nil {
		if err := m.unsubscribeFn(token); err != nil {
			return err
		}
	}
	m.unsubscribed = append(m.unsubscribed, token)
	return nil
}

func (m *mockRecorder) recorded() []tracking.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tracking.Event(nil), m.events...)
}

type mockReports struct {
	campaign   *domain.Campaign
	getErr     error
	deliveries map[domain.DeliveryStatus]int
	events     map[domain.EventType]int
	countErr   error
}

func (m *mockReports) GetCampaign(context.Context, string) (*domain.Campaign, error) {
	return m.campaign, m.getErr
}

func (m *mockReports) CountCampaignRecipients(context.Context, string) (map[domain.DeliveryStatus]int, error) {
	return m.deliveries, m.countErr
}

func (m *mockReports) CountTrackingEvents(context.Context, string) (map[domain.EventType]int, error) {
	return m.events, m.countErr
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

type mockTransport struct{ status provider.HealthStatus }

func (m mockTransport) Status() provider.HealthStatus { return m.status }

// withURLParams attaches chi route parameters to req.
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
