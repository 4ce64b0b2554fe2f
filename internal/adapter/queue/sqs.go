package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fieldnote/internal/infra/config"
)

// sqsAPI abstracts the SQS client methods used here, for testability.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Record is one received queue message. The body is the webhook form
// serialized as a flat JSON object.
type Record struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

// SQSQueue carries webhook payloads from the edge to the worker.
type SQSQueue struct {
	url      string
	waitTime time.Duration
	maxBatch int32
	client   sqsAPI
	logger   *slog.Logger
}

// NewSQSQueue creates a queue client using the default AWS credential chain.
func NewSQSQueue(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (*SQSQueue, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue url is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newSQSQueueWithClient(cfg, sqs.NewFromConfig(awsCfg), logger), nil
}

// newSQSQueueWithClient creates an SQSQueue with an injected client (for testing).
func newSQSQueueWithClient(cfg config.QueueConfig, client sqsAPI, logger *slog.Logger) *SQSQueue {
	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = 20 * time.Second
	}
	maxBatch := cfg.MaxMessages
	if maxBatch <= 0 || maxBatch > 10 {
		maxBatch = 10
	}
	return &SQSQueue{
		url:      cfg.URL,
		waitTime: waitTime,
		maxBatch: maxBatch,
		client:   client,
		logger:   logger,
	}
}

// Enqueue publishes webhook form parameters as a flat JSON object. Repeated
// form keys collapse to their first value, matching how the webhook source
// sends them.
func (q *SQSQueue) Enqueue(ctx context.Context, form url.Values) (string, error) {
	flat := make(map[string]string, len(form))
	for k, vs := range form {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}

	body, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("marshal message body: %w", err)
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	id := aws.ToString(out.MessageId)
	q.logger.Info("enqueued webhook payload", "queue_message_id", id, "message_sid", flat["MessageSid"])
	return id, nil
}

// Receive long-polls for the next batch of records. An empty slice means
// the wait elapsed with no traffic.
func (q *SQSQueue) Receive(ctx context.Context) ([]Record, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: q.maxBatch,
		WaitTimeSeconds:     int32(q.waitTime.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	records := make([]Record, 0, len(out.Messages))
	for _, m := range out.Messages {
		records = append(records, Record{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	if len(records) > 0 {
		q.logger.Debug("received batch", "count", len(records))
	}
	return records, nil
}

// Delete acknowledges one record. Undeleted records return to the queue
// after the visibility timeout and get redelivered.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
