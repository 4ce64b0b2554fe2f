package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/tracer"
)

// Processor is the message-processing pipeline orchestrator. One call to
// Process handles one inbound message end to end: tenant resolution,
// content acquisition, classification, extraction, storage, reply. Stages
// run in strict order; any stage failure propagates without internal
// retries — redelivery happens at the queue, and the storage layer's
// overwrite protection keeps a redelivered message from double-writing.
type Processor struct {
	resolver    domain.TenantResolver
	messenger   domain.Messenger
	transcriber domain.Transcriber
	analyzer    domain.Analyzer
	store       domain.ObjectStore
	logger      *slog.Logger
}

// NewProcessor wires the pipeline's capabilities together.
func NewProcessor(
	resolver domain.TenantResolver,
	messenger domain.Messenger,
	transcriber domain.Transcriber,
	analyzer domain.Analyzer,
	store domain.ObjectStore,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		resolver:    resolver,
		messenger:   messenger,
		transcriber: transcriber,
		analyzer:    analyzer,
		store:       store,
		logger:      logger,
	}
}

// Process runs the pipeline for one message. It returns a result for the
// success and ignored outcomes; every fatal condition returns an error and
// no result. A failure after the acknowledgement reply leaves the sender
// with exactly one acknowledgement and no final reply.
func (p *Processor) Process(ctx context.Context, payload *domain.WebhookPayload) (*domain.ProcessingResult, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.process",
		trace.WithAttributes(tracer.StringAttr("message_id", payload.MessageSID)),
	)
	defer span.End()

	sender := payload.SenderNumber()
	if sender == "" {
		err := fmt.Errorf("%w: could not extract sender phone number", domain.ErrInvalidInput)
		tracer.RecordError(span, err)
		return nil, err
	}

	// Resolution comes first and fails closed: an unknown sender gets no
	// reply at all, not even the acknowledgement.
	identity, err := p.resolver.Resolve(ctx, sender)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("resolve tenant", err)
	}

	kind := payload.ContentKind()
	p.logger.Info("processing message",
		"message_id", payload.MessageSID,
		"kind", kind,
		"company_id", identity.CompanyID,
	)

	if !kind.Processable() {
		if _, err := p.messenger.SendMessage(ctx, sender, UnsupportedReply(kind)); err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("send unsupported notice", err)
		}
		span.SetAttributes(tracer.StringAttr("outcome", string(domain.StatusIgnored)))
		tracer.SetOK(span)
		return &domain.ProcessingResult{
			Status:        domain.StatusIgnored,
			MessageID:     payload.MessageSID,
			IgnoredReason: fmt.Sprintf("unsupported content kind: %s", kind),
		}, nil
	}

	// The acknowledgement goes out before acquisition begins. It is not
	// idempotence-protected: a redelivered message acknowledges twice.
	if _, err := p.messenger.SendMessage(ctx, sender, ackReply); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("send acknowledgement", err)
	}

	text, audio, err := p.acquireContent(ctx, payload, kind)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	meta, err := p.analyzer.Classify(ctx, text)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("classify", err)
	}
	// The classifier's output is untrusted regardless of which provider
	// produced it: the intent must be in the enum, the tag key-safe.
	intent, err := domain.ParseIntent(string(meta.Intent))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tag, err := domain.SanitizeTag(meta.Tag)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	meta = &domain.MessageMetadata{Intent: intent, Tag: tag}
	span.SetAttributes(
		tracer.StringAttr("intent", string(meta.Intent)),
		tracer.StringAttr("tag", meta.Tag),
	)

	var doc *domain.StructuredDocument
	if meta.Intent.NeedsExtraction() {
		doc, err = p.analyzer.Extract(ctx, text, meta.Intent)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("extract", err)
		}
		if err := doc.Validate(); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	keys, err := p.storeArtifacts(ctx, identity, meta, payload.MessageSID, text, audio, doc)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if _, err := p.messenger.SendMessage(ctx, sender, Compose(doc, meta.Tag)); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("send reply", err)
	}

	p.logger.Info("processing complete",
		"message_id", payload.MessageSID,
		"intent", meta.Intent,
		"artifacts", len(keys),
		"content_length", len(text),
	)
	tracer.SetOK(span)

	return &domain.ProcessingResult{
		Status:        domain.StatusSuccess,
		MessageID:     payload.MessageSID,
		StorageKeys:   keys,
		Metadata:      meta,
		Document:      doc,
		ContentLength: len(text),
	}, nil
}

// acquireContent returns the message text and, for audio messages, the raw
// media bytes. An empty text body is valid content, not an error.
func (p *Processor) acquireContent(ctx context.Context, payload *domain.WebhookPayload, kind domain.ContentClass) (string, []byte, error) {
	if kind == domain.ContentText {
		return payload.Body, nil, nil
	}

	mediaURL := payload.MediaReference()
	if mediaURL == "" {
		return "", nil, fmt.Errorf("%w: audio message missing media URL", domain.ErrInvalidInput)
	}

	audio, err := p.messenger.DownloadMedia(ctx, mediaURL)
	if err != nil {
		return "", nil, domain.WrapOp("download media", err)
	}

	text, err := p.transcriber.Transcribe(ctx, audio, payload.MessageSID+".ogg")
	if err != nil {
		return "", nil, domain.WrapOp("transcribe", err)
	}

	p.logger.Info("transcription completed", "message_id", payload.MessageSID, "chars", len(text))
	return text, audio, nil
}

// storeArtifacts writes the message's artifact set in fixed order: audio,
// full_text, text_summary. Every write requests overwrite=false, so a
// redelivered message collides on its first write and nothing is corrupted.
func (p *Processor) storeArtifacts(
	ctx context.Context,
	identity *domain.TenantIdentity,
	meta *domain.MessageMetadata,
	messageID string,
	text string,
	audio []byte,
	doc *domain.StructuredDocument,
) (map[domain.ArtifactType]string, error) {
	keys := make(map[domain.ArtifactType]string)

	write := func(t domain.ArtifactType, data []byte) error {
		key := domain.BuildKey(identity.CompanyID, meta.Intent, meta.Tag, messageID, t)
		stored, err := p.store.Upload(ctx, data, key, t.ContentType(), false)
		if err != nil {
			return domain.WrapOp(fmt.Sprintf("store %s", t), err)
		}
		keys[t] = stored
		return nil
	}

	if audio != nil {
		if err := write(domain.ArtifactAudio, audio); err != nil {
			return nil, err
		}
	}
	if err := write(domain.ArtifactFullText, []byte(text)); err != nil {
		return nil, err
	}
	if doc != nil {
		if err := write(domain.ArtifactTextSummary, []byte(doc.Format())); err != nil {
			return nil, err
		}
	}

	return keys, nil
}
