package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stdout prints each message summary instead of delivering it. Workers of
// one dispatch run share it, so writes are serialized per message.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewStdout(_ ProviderConfig) *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) GetName() string { return "stdout" }

func (s *Stdout) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== message %s ===\n", msg.ID)
	fmt.Fprintf(&b, "From:    %s\n", msg.FromHeader())
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	for _, k := range sortedKeys(msg.Headers) {
		fmt.Fprintf(&b, "Header:  %s: %s\n", k, msg.Headers[k])
	}
	for _, k := range sortedKeys(msg.Tags) {
		fmt.Fprintf(&b, "Tag:     %s=%s\n", k, msg.Tags[k])
	}
	fmt.Fprintf(&b, "Bodies:  html=%dB text=%dB\n", len(msg.HTMLBody), len(msg.TextBody))

	s.mu.Lock()
	_, err := io.WriteString(s.writer, b.String())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + msg.ID,
		Timestamp:         time.Now(),
	}, nil
}

func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
