package provider

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	p := &Stdout{writer: &buf}

	msg := testMessage()
	msg.Headers = map[string]string{"List-Unsubscribe": "<https://app.example.com/u?token=r1>"}

	result, err := p.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.ProviderMessageID != "stdout-c1-r1" {
		t.Errorf("ProviderMessageID = %s", result.ProviderMessageID)
	}

	output := buf.String()
	for _, want := range []string{
		"=== message c1-r1 ===",
		`"Example News" <news@example.com>`,
		"To:      ana@example.com",
		"Subject: Hello Ana",
		"Header:  List-Unsubscribe: <https://app.example.com/u?token=r1>",
		"Tag:     campaign_id=c1",
		"Tag:     recipient_id=r1",
		"Bodies:  html=13B text=6B",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestStdout_ConcurrentSendsDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	p := &Stdout{writer: &buf}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := testMessage()
			msg.ID = fmt.Sprintf("m%d", i)
			if _, err := p.Send(context.Background(), msg); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}()
	}
	wg.Wait()

	blocks := strings.Split(buf.String(), "=== message ")
	if len(blocks) != 21 {
		t.Fatalf("expected 20 message blocks, got %d", len(blocks)-1)
	}
	for _, block := range blocks[1:] {
		if strings.Count(block, "Subject:") != 1 {
			t.Errorf("interleaved block:\n%s", block)
		}
	}
}

func TestStdout_SendCancelled(t *testing.T) {
	var buf bytes.Buffer
	p := &Stdout{writer: &buf}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected error for a cancelled context")
	}
	if buf.Len() != 0 {
		t.Error("cancelled send must not print")
	}
}

func TestStdout_NameAndHealth(t *testing.T) {
	p := NewStdout(ProviderConfig{Type: "stdout"})
	if p.GetName() != "stdout" {
		t.Errorf("GetName() = %s", p.GetName())
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}
