package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// SQSEnqueuer publishes dispatch requests to an AWS SQS queue. On a FIFO
// queue requests are grouped by campaign and deduplicated by request id.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
	fifo     bool
	log      zerolog.Logger
}

func NewSQSEnqueuer(client sqsAPI, queueURL string, log zerolog.Logger) *SQSEnqueuer {
	return &SQSEnqueuer{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		log:      log,
	}
}

// Enqueue sends req as a JSON message and returns the SQS message ID.
func (e *SQSEnqueuer) Enqueue(ctx context.Context, req *Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	in := &sqsSendInput{
		QueueURL:    e.queueURL,
		MessageBody: string(data),
		CampaignID:  req.CampaignID,
	}
	if e.fifo {
		in.GroupID = req.CampaignID
		in.DedupID = req.ID
	}
	out, err := e.client.SendMessage(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}

	RequestsEnqueuedTotal.WithLabelValues("sqs").Inc()
	e.log.Debug().
		Str("campaign_id", req.CampaignID).
		Str("sqs_message_id", out.MessageID).
		Msg("dispatch request enqueued")

	return out.MessageID, nil
}
