// Package dispatch runs campaign dispatches: it personalizes and
// instruments content for every pending recipient, transmits it through the
// delivery transport and converges per-recipient and campaign status.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sungwon/campaign-dispatch/internal/archive"
	"github.com/sungwon/campaign-dispatch/internal/domain"
	"github.com/sungwon/campaign-dispatch/internal/metrics"
	"github.com/sungwon/campaign-dispatch/internal/personalize"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

const (
	defaultWorkers  = 1
	defaultThrottle = 100 * time.Millisecond
)

// messageNamespace seeds the deterministic per-recipient message ids.
var messageNamespace = uuid.MustParse("5b0f8f9e-6c1d-4d59-9a3e-2f7c1a0d4e61")

// Config controls how a Dispatcher sends.
type Config struct {
	// From and FromName are the sender identity of every message.
	From     string
	FromName string
	// Workers is the number of concurrent senders. Defaults to 1.
	Workers int
	// Throttle is the minimum interval between two transmissions across
	// all workers. Zero disables throttling.
	Throttle time.Duration
	Tracking tracking.Instrumenter
	// Vars are global custom variable values, used after recipient metadata.
	Vars map[string]string
}

// DefaultConfig returns one worker with a 100ms throttle.
func DefaultConfig() Config {
	return Config{Workers: defaultWorkers, Throttle: defaultThrottle}
}

// Result summarizes a dispatch run. Skipped rows are counted in neither
// Sent nor Failed. Status is empty when no run was started.
type Result struct {
	Sent    int                   `json:"sent_count"`
	Failed  int                   `json:"failed_count"`
	Skipped int                   `json:"skipped_count"`
	Status  domain.CampaignStatus `json:"status,omitempty"`
}

// Dispatcher sends campaigns.
type Dispatcher struct {
	store     Store
	transport TransportFactory
	archive   archive.Archive
	previewer *personalize.Previewer
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a Dispatcher. arch may be nil to disable archiving.
func New(store Store, transport TransportFactory, arch archive.Archive, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if arch == nil {
		arch = archive.Nop{}
	}
	return &Dispatcher{
		store:     store,
		transport: transport,
		archive:   arch,
		previewer: personalize.NewPreviewer(),
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

// content is the resolved, not yet personalized message of a campaign.
type content struct {
	campaignID string
	subject    string
	body       string
}

// Dispatch sends campaignID to all of its pending recipients.
//
// Precondition failures (ErrNotFound, ErrInvalidState, ErrNoContent,
// ErrEmptyAudience) are returned before anything is written. Once the
// campaign is claimed every pending row reaches a terminal status and the
// campaign ends sent, failed (transport unavailable) or cancelled (ctx done
// mid-run). Per-recipient send failures are recorded, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) (Result, error) {
	log := d.log.With().Str("campaign_id", campaignID).Logger()

	msg, rows, err := d.prepare(ctx, campaignID)
	if err != nil {
		metrics.DispatchRunsTotal.WithLabelValues("rejected").Inc()
		return Result{}, err
	}

	tr := NewTracker(d.store, campaignID, log)
	tr.now = d.now
	if err := tr.Begin(ctx); err != nil {
		metrics.DispatchRunsTotal.WithLabelValues("rejected").Inc()
		return Result{}, err
	}

	metrics.DispatchRunsInFlight.Inc()
	defer metrics.DispatchRunsInFlight.Dec()
	start := time.Now()

	log.Info().
		Int("recipients", len(rows)).
		Int("workers", d.cfg.Workers).
		Dur("throttle", d.cfg.Throttle).
		Msg("dispatch run started")

	p, err := d.openTransport(ctx)
	if err != nil {
		log.Error().Err(err).Msg("delivery transport unavailable, aborting run")
		tr.SkipRemaining(ctx, "delivery transport unavailable")
		res, finErr := d.finish(ctx, tr, domain.CampaignFailed, start, log)
		return res, errors.Join(fmt.Errorf("%w: %w", ErrTransportUnavailable, err), finErr)
	}
	defer closeTransport(p, log)
	tr.SetProvider(p.GetName())

	processed := d.run(ctx, tr, p, msg, rows, log)

	status := domain.CampaignSent
	var runErr error
	if processed < len(rows) {
		tr.SkipRemaining(ctx, "dispatch cancelled")
		status = domain.CampaignCancelled
		runErr = ErrCancelled
		if cause := context.Cause(ctx); cause != nil {
			runErr = fmt.Errorf("%w: %w", ErrCancelled, cause)
		}
	}

	res, finErr := d.finish(ctx, tr, status, start, log)
	return res, errors.Join(runErr, finErr)
}

// Check reports whether campaignID could be dispatched now. It returns the
// same precondition errors as Dispatch and writes nothing.
func (d *Dispatcher) Check(ctx context.Context, campaignID string) error {
	_, _, err := d.prepare(ctx, campaignID)
	return err
}

// prepare checks every precondition without writing anything.
func (d *Dispatcher) prepare(ctx context.Context, campaignID string) (content, []domain.CampaignRecipient, error) {
	c, err := d.loadCampaign(ctx, campaignID)
	if err != nil {
		return content{}, nil, err
	}
	if !c.Status.Dispatchable() {
		return content{}, nil, fmt.Errorf("%w: campaign %s is %s", ErrInvalidState, campaignID, c.Status)
	}

	msg, err := d.resolveContent(ctx, c)
	if err != nil {
		return content{}, nil, err
	}

	rows, err := d.store.ListPendingRecipients(ctx, campaignID)
	if err != nil {
		return content{}, nil, fmt.Errorf("list pending recipients: %w", err)
	}
	if len(rows) == 0 {
		return content{}, nil, ErrEmptyAudience
	}
	return msg, rows, nil
}

func (d *Dispatcher) loadCampaign(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	c, err := d.store.GetCampaign(ctx, campaignID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// resolveContent prefers the referenced template. A dangling template
// reference falls back to the campaign's own content.
func (d *Dispatcher) resolveContent(ctx context.Context, c *domain.Campaign) (content, error) {
	var tmpl *domain.Template
	if c.TemplateID != nil && *c.TemplateID != "" {
		t, err := d.store.GetTemplate(ctx, *c.TemplateID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			d.log.Warn().
				Str("campaign_id", c.ID).
				Str("template_id", *c.TemplateID).
				Msg("referenced template not found, using campaign content")
		case err != nil:
			return content{}, fmt.Errorf("get template: %w", err)
		default:
			tmpl = t
		}
	}

	subject, body, ok := domain.ResolveContent(c, tmpl)
	if !ok {
		return content{}, ErrNoContent
	}
	return content{campaignID: c.ID, subject: subject, body: body}, nil
}

func (d *Dispatcher) openTransport(ctx context.Context) (provider.Provider, error) {
	p, err := d.transport(ctx)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if err := p.HealthCheck(ctx); err != nil {
		closeTransport(p, d.log)
		return nil, fmt.Errorf("verify %s transport: %w", p.GetName(), err)
	}
	return p, nil
}

func closeTransport(p provider.Provider, log zerolog.Logger) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("provider", p.GetName()).Msg("failed to close transport")
		}
	}
}

func (d *Dispatcher) newLimiter() *rate.Limiter {
	if d.cfg.Throttle <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d.cfg.Throttle), 1)
}

// run feeds rows to the worker pool and returns how many rows reached a
// terminal status. It stops feeding once ctx is done.
func (d *Dispatcher) run(
	ctx context.Context,
	tr *Tracker,
	p provider.Provider,
	msg content,
	rows []domain.CampaignRecipient,
	log zerolog.Logger,
) int {
	limiter := d.newLimiter()
	jobs := make(chan domain.CampaignRecipient)

	var (
		processed atomic.Int64
		wg        sync.WaitGroup
	)
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				if d.deliver(ctx, tr, p, limiter, msg, row, log) {
					processed.Add(1)
				}
			}
		}()
	}

feed:
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- row:
		}
	}
	close(jobs)
	wg.Wait()

	return int(processed.Load())
}

// waitThrottle blocks until limiter admits one send or ctx ends. Unlike
// rate.Limiter.Wait it does not give up early when the reservation would
// outlast the context deadline.
func waitThrottle(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("throttle: burst exceeded")
	}
	delay := r.Delay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// deliver handles one row. It returns false when the row was left pending
// because ctx ended while waiting for the throttle.
func (d *Dispatcher) deliver(
	ctx context.Context,
	tr *Tracker,
	p provider.Provider,
	limiter *rate.Limiter,
	msg content,
	row domain.CampaignRecipient,
	log zerolog.Logger,
) bool {
	rcpt := row.Recipient
	rcpt.ID = row.RecipientID
	log = log.With().Str("recipient_id", rcpt.ID).Logger()

	if !rcpt.Active() {
		tr.RecordSkipped(ctx, rcpt.ID, "recipient "+string(rcpt.Status))
		log.Debug().Str("recipient_status", string(rcpt.Status)).Msg("recipient skipped")
		return true
	}

	if err := waitThrottle(ctx, limiter); err != nil {
		return false
	}

	out, err := d.buildMessage(msg, rcpt)
	if err != nil {
		log.Error().Err(err).Msg("failed to build message")
		tr.RecordFailed(ctx, rcpt.ID, err)
		return true
	}

	// An in-flight send is finished even when the run is being cancelled.
	sendCtx := context.WithoutCancel(ctx)
	start := time.Now()
	result, err := safeSend(sendCtx, p, out)
	elapsed := time.Since(start)
	metrics.DispatchSendDuration.WithLabelValues(p.GetName()).Observe(elapsed.Seconds())

	if err != nil {
		log.Warn().Err(err).
			Str("provider", p.GetName()).
			Bool("permanent", provider.IsPermanent(err)).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("send failed")
		tr.RecordFailed(ctx, rcpt.ID, err)
		return true
	}

	log.Debug().
		Str("provider", p.GetName()).
		Str("provider_message_id", result.ProviderMessageID).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("message sent")
	tr.RecordSent(ctx, rcpt.ID)
	d.archiveMessage(sendCtx, msg.campaignID, rcpt.ID, out, log)
	return true
}

// buildMessage personalizes and instruments content for one recipient.
func (d *Dispatcher) buildMessage(msg content, rcpt domain.Recipient) (out *provider.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render message: panic: %v", r)
		}
	}()

	unsubscribeURL := d.cfg.Tracking.UnsubscribeURL(rcpt.ID)
	data := personalize.Data{
		Recipient:      rcpt,
		UnsubscribeURL: unsubscribeURL,
		Vars:           d.cfg.Vars,
	}
	body := personalize.Render(msg.body, data)
	body = d.cfg.Tracking.InjectBeacon(body, msg.campaignID, rcpt.ID)

	out = &provider.Message{
		ID:       MessageID(msg.campaignID, rcpt.ID),
		From:     d.cfg.From,
		FromName: d.cfg.FromName,
		To:       rcpt.Email,
		Subject:  personalize.Render(msg.subject, data),
		HTMLBody: body,
		Tags: map[string]string{
			"campaign_id":  msg.campaignID,
			"recipient_id": rcpt.ID,
		},
	}
	if unsubscribeURL != "" {
		out.Headers = map[string]string{"List-Unsubscribe": "<" + unsubscribeURL + ">"}
	}
	return out, nil
}

// MessageID returns the stable message id of one recipient of one campaign.
func MessageID(campaignID, recipientID string) string {
	return uuid.NewSHA1(messageNamespace, []byte(campaignID+"/"+recipientID)).String()
}

func safeSend(ctx context.Context, p provider.Provider, msg *provider.Message) (res *provider.DeliveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: send panic: %v", p.GetName(), r)
		}
	}()
	res, err = p.Send(ctx, msg)
	if err == nil && res == nil {
		res = &provider.DeliveryResult{ProviderMessageID: msg.ID, Timestamp: time.Now()}
	}
	return res, err
}

func (d *Dispatcher) archiveMessage(ctx context.Context, campaignID, recipientID string, msg *provider.Message, log zerolog.Logger) {
	backend := archiveBackend(d.archive)
	if backend == "" {
		return
	}

	raw, err := provider.ComposeMIME(msg)
	if err == nil {
		err = d.archive.Put(ctx, campaignID, recipientID, raw)
	}
	if err != nil {
		metrics.ArchiveWritesTotal.WithLabelValues(backend, "error").Inc()
		log.Error().Err(err).Str("backend", backend).Msg("failed to archive message")
		return
	}
	metrics.ArchiveWritesTotal.WithLabelValues(backend, "ok").Inc()
}

func archiveBackend(a archive.Archive) string {
	switch a.(type) {
	case archive.Nop, *archive.Nop:
		return ""
	case *archive.LocalArchive:
		return "local"
	case *archive.S3Archive:
		return "s3"
	default:
		return "custom"
	}
}

func (d *Dispatcher) finish(
	ctx context.Context,
	tr *Tracker,
	status domain.CampaignStatus,
	start time.Time,
	log zerolog.Logger,
) (Result, error) {
	err := tr.Finish(ctx, status)
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("failed to finalize campaign")
	}

	res := tr.Counts()
	res.Status = status

	elapsed := time.Since(start)
	metrics.DispatchRunsTotal.WithLabelValues(string(status)).Inc()
	metrics.DispatchRunDuration.Observe(elapsed.Seconds())

	log.Info().
		Str("status", string(status)).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("dispatch run finished")

	return res, err
}
