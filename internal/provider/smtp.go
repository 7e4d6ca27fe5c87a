package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTP implements the Provider interface by relaying through an upstream
// SMTP server. One connection is kept open and reused across sends; it is
// redialed after any connection-level failure.
type SMTP struct {
	addr      string
	host      string
	username  string
	password  string
	tlsMode   string
	timeout   time.Duration
	tlsConfig *tls.Config

	mu     sync.Mutex
	client *gosmtp.Client
}

// NewSMTP creates an SMTP relay provider. A zero cfg.Timeout means
// defaultTimeout.
func NewSMTP(cfg ProviderConfig) *SMTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMTP{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		username:  cfg.Username,
		password:  cfg.Password,
		tlsMode:   cfg.TLSMode,
		timeout:   timeout,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

func (s *SMTP) GetName() string { return "smtp" }

// HealthCheck establishes the connection if needed and verifies it with NOOP.
// A stale connection is replaced once before giving up.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Noop(); err == nil {
			return nil
		}
		s.closeLocked()
	}

	c, err := s.connectLocked(ctx)
	if err != nil {
		return err
	}
	if err := c.Noop(); err != nil {
		s.closeLocked()
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return nil
}

// Send transmits one message on the shared connection.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	raw, err := ComposeMIME(msg)
	if err != nil {
		return nil, fmt.Errorf("smtp: compose: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectLocked(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.transmitLocked(c, msg, raw); err != nil {
		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			// The server rejected this message; the session is still usable.
			_ = c.Reset()
			return nil, classifySMTPError(smtpErr)
		}
		s.closeLocked()
		return nil, fmt.Errorf("smtp: send: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: msg.ID,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// Close quits the shared connection.
func (s *SMTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Quit()
	s.client = nil
	return err
}

func (s *SMTP) transmitLocked(c *gosmtp.Client, msg *Message, raw []byte) error {
	if err := c.Mail(msg.From, nil); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := bytes.NewReader(raw).WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *SMTP) connectLocked(ctx context.Context) (*gosmtp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.tlsMode == "implicit" {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", s.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", s.addr, err)
	}

	// Bounds the greeting and handshake; per-command timeouts take over after.
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	var c *gosmtp.Client
	if s.tlsMode == "starttls" {
		// Greets, checks the extension and upgrades the connection.
		c, err = gosmtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("smtp: starttls with %s: %w", s.addr, err)
		}
	} else {
		c = gosmtp.NewClient(conn)
		if err := c.Hello("localhost"); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp: hello: %w", err)
		}
	}
	c.CommandTimeout = s.timeout
	c.SubmissionTimeout = s.timeout

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}

	s.client = c
	return c, nil
}

func (s *SMTP) closeLocked() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

func classifySMTPError(err *gosmtp.SMTPError) *ProviderError {
	return ClassifySMTPReply(err.Code, err.EnhancedCode, err.Error())
}
