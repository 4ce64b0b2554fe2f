package usecase

import (
	"context"
	"encoding/json"
	"net/url"

	"fieldnote/internal/domain"
)

// QueueRecord is one queued message as seen by the batch wrapper: the
// queue's own message ID plus the webhook form serialized as flat JSON.
type QueueRecord struct {
	MessageID string
	Body      string
}

// BatchResult reports which records must be redelivered. Records absent
// from Failed were either processed or deliberately dropped.
type BatchResult struct {
	Failed []string
}

// ProcessBatch runs the pipeline over a batch of queue records and builds
// a partial-failure report. Malformed JSON bodies are dropped without
// retry — redelivering them can never succeed. Payload validation and
// processing failures mark the record failed so the queue redelivers it.
func (p *Processor) ProcessBatch(ctx context.Context, records []QueueRecord) *BatchResult {
	result := &BatchResult{}

	for _, record := range records {
		var flat map[string]string
		if err := json.Unmarshal([]byte(record.Body), &flat); err != nil {
			p.logger.Error("dropping malformed queue record",
				"queue_message_id", record.MessageID, "error", err)
			continue
		}

		form := make(url.Values, len(flat))
		for k, v := range flat {
			form.Set(k, v)
		}

		payload, err := domain.ParseWebhookPayload(form)
		if err != nil {
			p.logger.Error("queue record failed payload validation",
				"queue_message_id", record.MessageID, "error", err)
			result.Failed = append(result.Failed, record.MessageID)
			continue
		}

		outcome, err := p.Process(ctx, payload)
		if err != nil {
			p.logger.Error("processing failed",
				"queue_message_id", record.MessageID,
				"message_sid", payload.MessageSID,
				"error", err,
				"error_code", domain.ErrorCodeOf(err),
			)
			result.Failed = append(result.Failed, record.MessageID)
			continue
		}

		p.logger.Info("record processed",
			"queue_message_id", record.MessageID,
			"message_sid", payload.MessageSID,
			"status", outcome.Status,
		)
	}

	return result
}

// FailedSet returns the failed IDs as a set for O(1) acknowledgement checks.
func (r *BatchResult) FailedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Failed))
	for _, id := range r.Failed {
		set[id] = struct{}{}
	}
	return set
}
