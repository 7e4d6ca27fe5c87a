package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/sungwon/campaign-dispatch/internal/mimeparse"
)

func TestComposeMIME_RoundTrip(t *testing.T) {
	msg := testMessage()
	msg.Subject = "Olá Ana"
	msg.HTMLBody = `<html><body><p>Hi Ana</p><img src="https://t.example.com/track?campaignId=c1&amp;recipientId=r1" /></body></html>`
	msg.Headers = map[string]string{"list-unsubscribe": "<https://app.example.com/u?token=r1>"}

	raw, err := composeMIME(msg, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("composeMIME() error = %v", err)
	}

	text := string(raw)
	if !strings.Contains(text, "List-Unsubscribe: <https://app.example.com/u?token=r1>\r\n") {
		t.Errorf("expected canonical custom header, got:\n%s", text)
	}
	if !strings.Contains(text, "Message-ID: <c1-r1@campaign-dispatch>\r\n") {
		t.Errorf("expected message id header, got:\n%s", text)
	}

	parsed, err := mimeparse.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Subject != "Olá Ana" {
		t.Errorf("Subject = %q", parsed.Subject)
	}
	if parsed.HTMLBody != msg.HTMLBody {
		t.Errorf("HTMLBody = %q, want %q", parsed.HTMLBody, msg.HTMLBody)
	}
	if parsed.TextBody != msg.TextBody {
		t.Errorf("TextBody = %q", parsed.TextBody)
	}
}

func TestComposeMIME_GeneratesMessageID(t *testing.T) {
	msg := testMessage()
	msg.ID = ""

	raw, err := ComposeMIME(msg)
	if err != nil {
		t.Fatalf("ComposeMIME() error = %v", err)
	}
	parsed, err := mimeparse.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !strings.HasSuffix(parsed.MessageID, "@campaign-dispatch>") || len(parsed.MessageID) < 30 {
		t.Errorf("MessageID = %q", parsed.MessageID)
	}
}
