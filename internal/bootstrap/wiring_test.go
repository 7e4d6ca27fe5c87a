package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/archive"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/mimeparse"
)

func TestProviderConfig_MapsSMTPSettings(t *testing.T) {
	got := ProviderConfig(config.ProviderConfig{
		Type:    "smtp",
		Timeout: 10 * time.Second,
		SMTP: config.SMTPConfig{
			Host:     "relay.example.com",
			Port:     465,
			Username: "u",
			Password: "p",
			TLS:      "implicit",
		},
	})

	if got.Host != "relay.example.com" || got.Port != 465 || got.TLSMode != "implicit" ||
		got.Username != "u" || got.Password != "p" || got.Timeout != 10*time.Second {
		t.Errorf("unexpected provider config: %+v", got)
	}
}

func TestTransport_BuildsConfiguredProvider(t *testing.T) {
	p, err := Transport(config.ProviderConfig{Type: "stdout"})(context.Background())
	if err != nil {
		t.Fatalf("transport error = %v", err)
	}
	if p.GetName() != "stdout" {
		t.Errorf("GetName() = %q, want stdout", p.GetName())
	}

	if _, err := Transport(config.ProviderConfig{Type: "pigeon"})(context.Background()); err == nil {
		t.Error("expected an error for an unknown provider type")
	}
}

func TestArchive(t *testing.T) {
	arch, err := Archive(config.ArchiveConfig{}, zerolog.Nop())
	if err != nil || arch != nil {
		t.Errorf("disabled archive = %v, %v; want nil, nil", arch, err)
	}

	arch, err = Archive(config.ArchiveConfig{Type: "local", LocalPath: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("local archive error = %v", err)
	}
	if _, ok := arch.(*archive.LocalArchive); !ok {
		t.Errorf("expected *archive.LocalArchive, got %T", arch)
	}
}

func TestQueueConfig_KeepsDefaults(t *testing.T) {
	got := QueueConfig(config.QueueConfig{RedisAddr: "redis:6379", WorkerCount: 3})

	if got.Type != "redis" || got.Stream != "campaign-dispatch" || got.Group != "dispatchers" {
		t.Errorf("defaults lost: %+v", got)
	}
	if got.RedisAddr != "redis:6379" || got.WorkerCount != 3 {
		t.Errorf("overrides lost: %+v", got)
	}
}

func TestNewDispatcher_SendTestThroughFileProvider(t *testing.T) {
	outDir := t.TempDir()
	cfg := &config.Config{
		Sender:   config.SenderConfig{Address: "news@example.com", Name: "News"},
		Provider: config.ProviderConfig{Type: "file", FileDir: outDir},
		Tracking: config.TrackingConfig{
			TrackingURL:     "https://t.example.com/api/v1/track",
			BaseURL:         "https://t.example.com",
			UnsubscribePath: "/api/v1/unsubscribe",
		},
		Dispatch: config.DispatchConfig{Workers: 2, Vars: map[string]string{"company": "Acme"}},
	}

	d := NewDispatcher(cfg, nil, nil, zerolog.Nop())

	_, err := d.SendTest(context.Background(), dispatch.TestSend{
		Subject: "{{company}} update",
		Content: "<p>Hello {{email}}</p>",
		To:      "qa@example.com",
	})
	if err != nil {
		t.Fatalf("SendTest() error = %v", err)
	}

	files, err := filepath.Glob(filepath.Join(outDir, "*.eml"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected 1 written message, got %v (%v)", files, err)
	}
	raw, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	msg, err := mimeparse.Parse(raw)
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	if msg.Subject != "Acme update" || !strings.Contains(msg.HTMLBody, "Hello qa@example.com") {
		t.Errorf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.From, "news@example.com") {
		t.Errorf("From = %q", msg.From)
	}
}
