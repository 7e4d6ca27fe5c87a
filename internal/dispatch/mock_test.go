package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// memStore is an in-memory Store with the same guards as the SQL queries.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	templates  map[string]*domain.Template
	recipients map[string]*domain.Recipient
	rows       map[string][]*domain.CampaignRecipient

	// writes counts every status write.
	writes   int
	claimErr error
	markErr  error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  make(map[string]*domain.Campaign),
		templates:  make(map[string]*domain.Template),
		recipients: make(map[string]*domain.Recipient),
		rows:       make(map[string][]*domain.CampaignRecipient),
	}
}

func (s *memStore) addCampaign(c domain.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = &c
}

// addRecipient registers r and enrolls it as pending in campaignID.
func (s *memStore) addRecipient(campaignID string, r domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == "" {
		r.Status = domain.SubscriptionActive
	}
	s.recipients[r.ID] = &r
	s.rows[campaignID] = append(s.rows[campaignID], &domain.CampaignRecipient{
		CampaignID:  campaignID,
		RecipientID: r.ID,
		Status:      domain.DeliveryPending,
	})
}

func (s *memStore) campaign(id string) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *memStore) row(campaignID, recipientID string) domain.CampaignRecipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows[campaignID] {
		if r.RecipientID == recipientID {
			return *r
		}
	}
	return domain.CampaignRecipient{}
}

func (s *memStore) statusWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) pendingCount(campaignID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows[campaignID] {
		if r.Status == domain.DeliveryPending {
			n++
		}
	}
	return n
}

func (s *memStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetRecipient(_ context.Context, id string) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListPendingRecipients(_ context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CampaignRecipient
	for _, r := range s.rows[campaignID] {
		if r.Status != domain.DeliveryPending {
			continue
		}
		row := *r
		row.Recipient = *s.recipients[r.RecipientID]
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Recipient.Email < out[j].Recipient.Email })
	return out, nil
}

func (s *memStore) ListDueCampaigns(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.campaigns {
		if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) ClaimCampaign(_ context.Context, id string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	c, ok := s.campaigns[id]
	if !ok || !c.Status.Dispatchable() {
		return false, nil
	}
	c.Status = domain.CampaignSending
	c.StartedAt = &startedAt
	s.writes++
	return true, nil
}

func (s *memStore) FinishCampaign(_ context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || !c.Status.CanTransition(status) {
		return storage.ErrConflict
	}
	c.Status = status
	if status == domain.CampaignSent {
		c.SentAt = &at
	}
	s.writes++
	return nil
}

func (s *memStore) MarkRecipient(_ context.Context, campaignID, recipientID string, status domain.DeliveryStatus, at time.Time, errText string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	for _, r := range s.rows[campaignID] {
		if r.RecipientID != recipientID {
			continue
		}
		if !r.Status.CanTransition(status) {
			return false, nil
		}
		r.Status = status
		r.Error = errText
		if status == domain.DeliverySent {
			r.SentAt = &at
		}
		s.writes++
		return true, nil
	}
	return false, nil
}

func (s *memStore) SkipPendingRecipients(_ context.Context, campaignID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows[campaignID] {
		if r.Status == domain.DeliveryPending {
			r.Status = domain.DeliverySkipped
			r.Error = reason
			n++
		}
	}
	if n > 0 {
		s.writes++
	}
	return n, nil
}

// mockProvider records messages and fails or panics for chosen addresses.
type mockProvider struct {
	mu        sync.Mutex
	sent      []*provider.Message
	sentAt    []time.Time
	attempts  int
	failFor   map[string]error
	panicFor  string
	healthErr error
	closed    bool
	onSend    func(msg *provider.Message)
}

func (m *mockProvider) GetName() string { return "mock" }

func (m *mockProvider) HealthCheck(context.Context) error { return m.healthErr }

func (m *mockProvider) Send(_ context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()

	if m.onSend != nil {
		m.onSend(msg)
	}
	if msg.To == m.panicFor && m.panicFor != "" {
		panic("boom")
	}
	if err, ok := m.failFor[msg.To]; ok {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	m.sentAt = append(m.sentAt, time.Now())
	return &provider.DeliveryResult{ProviderMessageID: msg.ID, Timestamp: time.Now()}, nil
}

func (m *mockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockProvider) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *mockProvider) messages() []*provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provider.Message(nil), m.sent...)
}

func (m *mockProvider) sendTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.sentAt...)
}

func (m *mockProvider) messageTo(addr string) *provider.Message {
	for _, msg := range m.messages() {
		if msg.To == addr {
			return msg
		}
	}
	return nil
}

func recipientN(i int) domain.Recipient {
	return domain.Recipient{
		ID:        fmt.Sprintf("r%d", i),
		Email:     fmt.Sprintf("user%d@example.com", i),
		FirstName: fmt.Sprintf("User%d", i),
		Status:    domain.SubscriptionActive,
	}
}
