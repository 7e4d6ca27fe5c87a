package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQSDequeuer runs worker goroutines that long-poll an AWS SQS queue for
// dispatch requests.
type SQSDequeuer struct {
	client          sqsAPI
	queueURL        string
	handler         Handler
	log             zerolog.Logger
	workerCount     int
	waitTime        int32
	visTimeout      int32
	processTimeout  time.Duration
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewSQSDequeuer creates an SQSDequeuer configured from cfg.
func NewSQSDequeuer(client sqsAPI, handler Handler, cfg Config, log zerolog.Logger) *SQSDequeuer {
	waitTime := cfg.SQSWaitTime
	if waitTime == 0 {
		waitTime = 20
	}
	visTimeout := cfg.SQSVisTimeout
	if visTimeout == 0 {
		visTimeout = 30
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &SQSDequeuer{
		client:          client,
		queueURL:        cfg.SQSQueueURL,
		handler:         handler,
		log:             log,
		workerCount:     workerCount,
		waitTime:        waitTime,
		visTimeout:      visTimeout,
		processTimeout:  cfg.ProcessTimeout,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start launches workerCount goroutines that long-poll the SQS queue.
func (d *SQSDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.workerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.workerCount).
		Str("queue_url", d.queueURL).
		Msg("sqs dequeuer started")

	return nil
}

// Stop cancels the context and waits for workers to finish within the
// shutdown timeout.
func (d *SQSDequeuer) Stop(_ context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("sqs dequeuer stopped gracefully")
		return nil
	case <-time.After(d.shutdownTimeout):
		d.log.Warn().Msg("sqs dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.shutdownTimeout)
	}
}

func (d *SQSDequeuer) runWorker(ctx context.Context, workerName string) {
	defer d.wg.Done()

	d.log.Info().Str("worker", workerName).Msg("sqs worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Str("worker", workerName).Msg("sqs worker stopping")
			return
		default:
		}

		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     d.waitTime,
			VisibilityTimeout:   d.visTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Str("worker", workerName).Msg("sqs receive error")
			continue
		}

		for _, sqsMsg := range out.Messages {
			d.processMessage(ctx, sqsMsg)
		}
	}
}

// processMessage decodes one SQS message, hands it to the handler and
// deletes it regardless of the outcome so it is never redelivered.
func (d *SQSDequeuer) processMessage(ctx context.Context, sqsMsg sqsReceivedMessage) {
	defer func() {
		if err := d.client.DeleteMessage(context.WithoutCancel(ctx), &sqsDeleteInput{
			QueueURL:      d.queueURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		}); err != nil {
			d.log.Error().Err(err).
				Str("sqs_message_id", sqsMsg.MessageID).
				Msg("failed to delete sqs message")
		}
	}()

	var req Request
	if err := json.Unmarshal([]byte(sqsMsg.Body), &req); err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to unmarshal sqs message")
		RequestsProcessedTotal.WithLabelValues("sqs", "malformed").Inc()
		return
	}

	if sqsMsg.ReceiveCount > 1 {
		d.log.Warn().
			Str("sqs_message_id", sqsMsg.MessageID).
			Str("campaign_id", req.CampaignID).
			Int("receive_count", sqsMsg.ReceiveCount).
			Msg("dispatch request redelivered")
	}

	handle(ctx, d.handler, &req, d.processTimeout, "sqs", d.log)
}
