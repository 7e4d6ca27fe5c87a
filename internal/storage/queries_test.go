//go:build integration

package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/storage"
)

// seedCampaign creates a draft campaign with n fresh recipients attached.
func seedCampaign(t *testing.T, queries *storage.Queries, n int) (*domain.Campaign, []*domain.Recipient) {
	t.Helper()
	ctx := context.Background()

	c, err := queries.CreateCampaign(ctx, domain.Campaign{
		Name:    "campaign-" + uuid.NewString()[:8],
		Subject: "Hello {{firstName}}",
		Content: "<html><body><p>Hi {{firstName}}</p></body></html>",
	})
	if err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	var recipients []*domain.Recipient
	var ids []string
	for i := 0; i < n; i++ {
		r, err := queries.UpsertRecipient(ctx, domain.Recipient{
			Email:     "  User-" + uuid.NewString()[:8] + "@Example.com ",
			FirstName: "User",
			Metadata:  map[string]string{"plan": "pro"},
		})
		if err != nil {
			t.Fatalf("UpsertRecipient failed: %v", err)
		}
		recipients = append(recipients, r)
		ids = append(ids, r.ID)
	}
	if _, err := queries.AddCampaignRecipients(ctx, c.ID, ids); err != nil {
		t.Fatalf("AddCampaignRecipients failed: %v", err)
	}
	return c, recipients
}

func TestGetCampaign_NotFound(t *testing.T) {
	_, queries := setupTestDB(t)

	_, err := queries.GetCampaign(context.Background(), uuid.NewString())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateCampaign_WithTemplate(t *testing.T) {
	_, queries := setupTestDB(t)
	ctx := context.Background()

	tmpl, err := queries.CreateTemplate(ctx, domain.Template{Name: "welcome", Subject: "Welcome", Content: "<p>Welcome</p>"})
	if err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	c, err := queries.CreateCampaign(ctx, domain.Campaign{Name: "templated", TemplateID: &tmpl.ID})
	if err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	if c.Status != domain.CampaignDraft {
		t.Errorf("expected draft, got %s", c.Status)
	}
	if c.TemplateID == nil || *c.TemplateID != tmpl.ID {
		t.Errorf("expected template id %s, got %v", tmpl.ID, c.TemplateID)
	}

	got, err := queries.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.Content != "<p>Welcome</p>" {
		t.Errorf("unexpected template content %q", got.Content)
	}
}

func TestCreateCampaign_RejectsNonEditableStatus(t *testing.T) {
	_, queries := setupTestDB(t)

	_, err := queries.CreateCampaign(context.Background(), domain.Campaign{Name: "x", Status: domain.CampaignSent})
	if err == nil {
		t.Fatal("expected error for a sent initial status")
	}
}

func TestUpsertRecipient_NormalizesAndKeepsStatus(t *testing.T) {
	_, queries := setupTestDB(t)
	ctx := context.Background()

	email := "Mixed-" + uuid.NewString()[:8] + "@Example.COM"
	first, err := queries.UpsertRecipient(ctx, domain.Recipient{Email: email, FirstName: "Ana"})
	if err != nil {
		t.Fatalf("UpsertRecipient failed: %v", err)
	}
	if first.Email != domain.NormalizeEmail(email) {
		t.Errorf("email not normalized: %s", first.Email)
	}
	if err := queries.UpdateRecipientStatus(ctx, first.ID, domain.SubscriptionUnsubscribed); err != nil {
		t.Fatalf("UpdateRecipientStatus failed: %v", err)
	}

	second, err := queries.UpsertRecipient(ctx, domain.Recipient{Email: email, FirstName: "Ana Maria"})
	if err != nil {
		t.Fatalf("second UpsertRecipient failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same id, got %s and %s", first.ID, second.ID)
	}
	if second.FirstName != "Ana Maria" {
		t.Errorf("profile not refreshed: %s", second.FirstName)
	}
	if second.Status != domain.SubscriptionUnsubscribed {
		t.Errorf("subscription status overwritten: %s", second.Status)
	}
}

func TestUpdateRecipientStatus_NotFound(t *testing.T) {
	_, queries := setupTestDB(t)

	err := queries.UpdateRecipientStatus(context.Background(), uuid.NewString(), domain.SubscriptionBounced)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPendingRecipients_JoinsRecipient(t *testing.T) {
	_, queries := setupTestDB(t)
	c, recipients := seedCampaign(t, queries, 3)

	rows, err := queries.ListPendingRecipients(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListPendingRecipients failed: %v", err)
	}
	if len(rows) != len(recipients) {
		t.Fatalf("expected %d rows, got %d", len(recipients), len(rows))
	}
	for _, row := range rows {
		if row.Status != domain.DeliveryPending {
			t.Errorf("expected pending, got %s", row.Status)
		}
		if row.Recipient.ID != row.RecipientID {
			t.Errorf("recipient not joined: %+v", row)
		}
		if row.Recipient.Metadata["plan"] != "pro" {
			t.Errorf("metadata not loaded: %v", row.Recipient.Metadata)
		}
	}
}

func TestClaimCampaign_OnlyOnce(t *testing.T) {
	_, queries := setupTestDB(t)
	c, _ := seedCampaign(t, queries, 1)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := queries.ClaimCampaign(ctx, c.ID, time.Now())
			if err != nil {
				t.Errorf("ClaimCampaign failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", claims)
	}

	got, err := queries.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign failed: %v", err)
	}
	if got.Status != domain.CampaignSending || got.StartedAt == nil {
		t.Errorf("expected sending with started_at, got %s %v", got.Status, got.StartedAt)
	}
}

func TestFinishCampaign(t *testing.T) {
	_, queries := setupTestDB(t)
	c, _ := seedCampaign(t, queries, 1)
	ctx := context.Background()

	if err := queries.FinishCampaign(ctx, c.ID, domain.CampaignSent, time.Now()); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("finishing a draft campaign: expected ErrConflict, got %v", err)
	}

	if _, err := queries.ClaimCampaign(ctx, c.ID, time.Now()); err != nil {
		t.Fatalf("ClaimCampaign failed: %v", err)
	}
	if err := queries.FinishCampaign(ctx, c.ID, domain.CampaignSent, time.Now()); err != nil {
		t.Fatalf("FinishCampaign failed: %v", err)
	}

	got, _ := queries.GetCampaign(ctx, c.ID)
	if got.Status != domain.CampaignSent || got.SentAt == nil {
		t.Errorf("expected sent with sent_at, got %s %v", got.Status, got.SentAt)
	}

	if err := queries.FinishCampaign(ctx, c.ID, domain.CampaignFailed, time.Now()); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("terminal campaign rewritten: %v", err)
	}
}

func TestMarkRecipient_TerminalRowsAreFinal(t *testing.T) {
	_, queries := setupTestDB(t)
	c, recipients := seedCampaign(t, queries, 2)
	ctx := context.Background()
	now := time.Now()

	ok, err := queries.MarkRecipient(ctx, c.ID, recipients[0].ID, domain.DeliverySent, now, "")
	if err != nil || !ok {
		t.Fatalf("MarkRecipient sent: ok=%v err=%v", ok, err)
	}
	ok, err = queries.MarkRecipient(ctx, c.ID, recipients[0].ID, domain.DeliveryFailed, now, "late failure")
	if err != nil {
		t.Fatalf("MarkRecipient failed: %v", err)
	}
	if ok {
		t.Error("sent row was rewritten")
	}
	if _, err := queries.MarkRecipient(ctx, c.ID, recipients[1].ID, domain.DeliveryPending, now, ""); err == nil {
		t.Error("expected error when marking a row pending")
	}

	skipped, err := queries.SkipPendingRecipients(ctx, c.ID, "run cancelled")
	if err != nil {
		t.Fatalf("SkipPendingRecipients failed: %v", err)
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", skipped)
	}

	counts, err := queries.CountCampaignRecipients(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountCampaignRecipients failed: %v", err)
	}
	if counts[domain.DeliverySent] != 1 || counts[domain.DeliverySkipped] != 1 || counts[domain.DeliveryPending] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestListDueCampaigns(t *testing.T) {
	_, queries := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due, err := queries.CreateCampaign(ctx, domain.Campaign{Name: "due", Content: "x", Status: domain.CampaignScheduled, ScheduledAt: &past})
	if err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	later, err := queries.CreateCampaign(ctx, domain.Campaign{Name: "later", Content: "x", Status: domain.CampaignScheduled, ScheduledAt: &future})
	if err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	ids, err := queries.ListDueCampaigns(ctx, now)
	if err != nil {
		t.Fatalf("ListDueCampaigns failed: %v", err)
	}
	var sawDue, sawLater bool
	for _, id := range ids {
		sawDue = sawDue || id == due.ID
		sawLater = sawLater || id == later.ID
	}
	if !sawDue || sawLater {
		t.Errorf("due=%v later=%v in %v", sawDue, sawLater, ids)
	}
}

func TestAppendTrackingEvent(t *testing.T) {
	_, queries := setupTestDB(t)
	c, recipients := seedCampaign(t, queries, 1)
	ctx := context.Background()

	ev := &domain.TrackingEvent{
		CampaignID:  c.ID,
		RecipientID: recipients[0].ID,
		Type:        domain.EventOpen,
		Payload:     map[string]string{"user_agent": "test"},
	}
	if err := queries.AppendTrackingEvent(ctx, ev); err != nil {
		t.Fatalf("AppendTrackingEvent failed: %v", err)
	}
	if ev.ID == "" || ev.CreatedAt.IsZero() {
		t.Errorf("id and created_at not filled: %+v", ev)
	}

	counts, err := queries.CountTrackingEvents(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountTrackingEvents failed: %v", err)
	}
	if counts[domain.EventOpen] != 1 {
		t.Errorf("expected 1 open event, got %v", counts)
	}
}
