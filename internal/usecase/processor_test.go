package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"fieldnote/internal/domain"
)

// --- stubs ---

type stubResolver struct {
	identity *domain.TenantIdentity
	err      error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (*domain.TenantIdentity, error) {
	return s.identity, s.err
}

type sentMessage struct {
	To   string
	Body string
}

type stubMessenger struct {
	sent     []sentMessage
	sendErr  error
	media    []byte
	mediaErr error
}

func (s *stubMessenger) SendMessage(_ context.Context, recipient, body string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, sentMessage{To: recipient, Body: body})
	return fmt.Sprintf("SM_reply_%d", len(s.sent)), nil
}

func (s *stubMessenger) DownloadMedia(_ context.Context, _ string) ([]byte, error) {
	return s.media, s.mediaErr
}

type stubTranscriber struct {
	text        string
	err         error
	gotFilename string
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte, filename string) (string, error) {
	s.gotFilename = filename
	return s.text, s.err
}

type stubAnalyzer struct {
	meta       *domain.MessageMetadata
	classifyErr error
	doc        *domain.StructuredDocument
	extractErr error
	extracted  bool
}

func (s *stubAnalyzer) Classify(_ context.Context, _ string) (*domain.MessageMetadata, error) {
	return s.meta, s.classifyErr
}

func (s *stubAnalyzer) Extract(_ context.Context, _ string, _ domain.Intent) (*domain.StructuredDocument, error) {
	s.extracted = true
	return s.doc, s.extractErr
}

// memStore is an in-memory domain.ObjectStore with overwrite protection.
type memStore struct {
	objects map[string][]byte
	writes  []string
	failKey string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Upload(_ context.Context, data []byte, key, _ string, overwrite bool) (string, error) {
	if m.failKey != "" && strings.Contains(key, m.failKey) {
		return "", fmt.Errorf("storage unavailable")
	}
	if _, ok := m.objects[key]; ok && !overwrite {
		return "", fmt.Errorf("%w: %s", domain.ErrObjectExists, key)
	}
	m.objects[key] = data
	m.writes = append(m.writes, key)
	return key, nil
}

func (m *memStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return data, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// --- fixtures ---

type fixture struct {
	resolver    *stubResolver
	messenger   *stubMessenger
	transcriber *stubTranscriber
	analyzer    *stubAnalyzer
	store       *memStore
	processor   *Processor
}

func newFixture() *fixture {
	f := &fixture{
		resolver: &stubResolver{identity: &domain.TenantIdentity{
			CustomerID: "cust_1", CompanyID: "comp_1", CompanyName: "Acme",
		}},
		messenger:   &stubMessenger{},
		transcriber: &stubTranscriber{text: "transcribed note"},
		analyzer: &stubAnalyzer{
			meta: &domain.MessageMetadata{Intent: domain.IntentOther, Tag: "note"},
		},
		store: newMemStore(),
	}
	f.processor = NewProcessor(f.resolver, f.messenger, f.transcriber, f.analyzer, f.store,
		slog.New(slog.DiscardHandler))
	return f
}

func textPayload(t *testing.T, body string) *domain.WebhookPayload {
	t.Helper()
	p, err := domain.ParseWebhookPayload(url.Values{
		"MessageSid": {"SM12345678"},
		"From":       {"whatsapp:+14155552671"},
		"Body":       {body},
		"NumMedia":   {"0"},
	})
	if err != nil {
		t.Fatalf("ParseWebhookPayload: %v", err)
	}
	return p
}

func audioPayload(t *testing.T) *domain.WebhookPayload {
	t.Helper()
	p, err := domain.ParseWebhookPayload(url.Values{
		"MessageSid":        {"MM87654321"},
		"From":              {"whatsapp:+14155552671"},
		"NumMedia":          {"1"},
		"MediaContentType0": {"audio/ogg"},
		"MediaUrl0":         {"https://media.example.com/MM87654321"},
	})
	if err != nil {
		t.Fatalf("ParseWebhookPayload: %v", err)
	}
	return p
}

// --- tests ---

func TestProcess_JobTextMessage(t *testing.T) {
	f := newFixture()
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentJobToBeDone, Tag: "Johnson Job!!"}
	f.analyzer.doc = domain.NewJobDocument(&domain.JobsToBeDone{
		Summary:     "Order fittings",
		Job:         "Johnson job",
		Context:     "Site visit",
		ActionItems: []string{"order 3 copper fittings"},
	})

	result, err := f.processor.Process(t.Context(),
		textPayload(t, "Order 3 copper fittings for the Johnson job"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.Status != domain.StatusSuccess {
		t.Errorf("Status = %q", result.Status)
	}
	if result.Metadata.Tag != "johnson-job" {
		t.Errorf("Tag = %q, want sanitized johnson-job", result.Metadata.Tag)
	}

	// Text message with extraction: exactly full_text and text_summary.
	wantKeys := []string{
		"comp_1/job-to-be-done/johnson-job_SM12345678_full_text.txt",
		"comp_1/job-to-be-done/johnson-job_SM12345678_text_summary.txt",
	}
	if len(f.store.writes) != 2 {
		t.Fatalf("writes = %v", f.store.writes)
	}
	for i, want := range wantKeys {
		if f.store.writes[i] != want {
			t.Errorf("write[%d] = %q, want %q", i, f.store.writes[i], want)
		}
	}
	if got := string(f.store.objects[wantKeys[0]]); got != "Order 3 copper fittings for the Johnson job" {
		t.Errorf("full_text = %q", got)
	}
	if got := string(f.store.objects[wantKeys[1]]); !strings.Contains(got, "*Summary:*") {
		t.Errorf("text_summary = %q", got)
	}

	// Acknowledgement then final structured reply.
	if len(f.messenger.sent) != 2 {
		t.Fatalf("sent = %v", f.messenger.sent)
	}
	if !strings.Contains(f.messenger.sent[0].Body, "Message received") {
		t.Errorf("ack = %q", f.messenger.sent[0].Body)
	}
	final := f.messenger.sent[1].Body
	if !strings.Contains(final, "*Summary:*") {
		t.Errorf("final reply = %q", final)
	}
	if len(final) > ReplyBudget {
		t.Errorf("final reply length = %d", len(final))
	}
}

func TestProcess_OtherIntentSingleWrite(t *testing.T) {
	f := newFixture()
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentOther, Tag: "chit-chat"}

	result, err := f.processor.Process(t.Context(), textPayload(t, "hello there"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if f.analyzer.extracted {
		t.Error("OTHER intent must never reach the extractor")
	}
	if result.Document != nil {
		t.Error("OTHER intent must produce no document")
	}
	if len(f.store.writes) != 1 || !strings.HasSuffix(f.store.writes[0], "_full_text.txt") {
		t.Errorf("writes = %v, want full_text only", f.store.writes)
	}
	if f.messenger.sent[1].Body != otherReply {
		t.Errorf("final reply = %q, want fixed informational template", f.messenger.sent[1].Body)
	}
}

func TestProcess_AudioMessage(t *testing.T) {
	f := newFixture()
	f.messenger.media = []byte("oggbytes")
	f.transcriber.text = "remember to order the tiles"
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentKnowledgeDocument, Tag: "tile-order"}
	f.analyzer.doc = domain.NewKnowledgeDocument(&domain.KnowledgeDocument{
		Title: "Tile order", Summary: "Order tiles", Context: "Renovation",
	})

	result, err := f.processor.Process(t.Context(), audioPayload(t))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Audio messages write audio before full_text before text_summary.
	if len(f.store.writes) != 3 {
		t.Fatalf("writes = %v", f.store.writes)
	}
	for i, suffix := range []string{"_audio.ogg", "_full_text.txt", "_text_summary.txt"} {
		if !strings.HasSuffix(f.store.writes[i], suffix) {
			t.Errorf("write[%d] = %q, want suffix %q", i, f.store.writes[i], suffix)
		}
	}
	if string(f.store.objects[result.StorageKeys[domain.ArtifactAudio]]) != "oggbytes" {
		t.Error("audio artifact must carry the raw media bytes")
	}
	if f.transcriber.gotFilename != "MM87654321.ogg" {
		t.Errorf("transcribe filename = %q", f.transcriber.gotFilename)
	}
	if result.ContentLength != len("remember to order the tiles") {
		t.Errorf("ContentLength = %d", result.ContentLength)
	}
}

func TestProcess_UnresolvedSenderGetsNoReply(t *testing.T) {
	f := newFixture()
	f.resolver.err = fmt.Errorf("%w: unknown number", domain.ErrUnauthorizedSender)

	_, err := f.processor.Process(t.Context(), textPayload(t, "hi"))
	if !errors.Is(err, domain.ErrUnauthorizedSender) {
		t.Fatalf("err = %v", err)
	}
	if len(f.messenger.sent) != 0 {
		t.Errorf("sent = %v, unauthorized sender must get no reply", f.messenger.sent)
	}
	if len(f.store.writes) != 0 {
		t.Error("no writes may occur for an unauthorized sender")
	}
}

func TestProcess_UnsupportedKindIgnored(t *testing.T) {
	f := newFixture()
	p, err := domain.ParseWebhookPayload(url.Values{
		"MessageSid":        {"SM12345678"},
		"From":              {"whatsapp:+14155552671"},
		"NumMedia":          {"1"},
		"MediaContentType0": {"image/jpeg"},
		"MediaUrl0":         {"https://media.example.com/SM12345678"},
	})
	if err != nil {
		t.Fatalf("ParseWebhookPayload: %v", err)
	}

	result, err := f.processor.Process(t.Context(), p)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != domain.StatusIgnored {
		t.Errorf("Status = %q", result.Status)
	}
	if len(f.store.writes) != 0 {
		t.Error("ignored messages must not write artifacts")
	}
	if len(f.messenger.sent) != 1 || !strings.Contains(f.messenger.sent[0].Body, "not supported") {
		t.Errorf("sent = %v, want single unsupported notice", f.messenger.sent)
	}
}

func TestProcess_MediaDownloadFailure(t *testing.T) {
	f := newFixture()
	f.messenger.mediaErr = fmt.Errorf("%w: connection reset", domain.ErrMediaDownload)

	_, err := f.processor.Process(t.Context(), audioPayload(t))
	if !errors.Is(err, domain.ErrMediaDownload) {
		t.Fatalf("err = %v", err)
	}

	// Acknowledgement already went out; nothing was written.
	if len(f.messenger.sent) != 1 || !strings.Contains(f.messenger.sent[0].Body, "Message received") {
		t.Errorf("sent = %v, want acknowledgement only", f.messenger.sent)
	}
	if len(f.store.writes) != 0 {
		t.Errorf("writes = %v, want none", f.store.writes)
	}
}

func TestProcess_TranscriptionFailure(t *testing.T) {
	f := newFixture()
	f.messenger.media = []byte("oggbytes")
	f.transcriber.err = fmt.Errorf("%w: provider error", domain.ErrTranscription)

	_, err := f.processor.Process(t.Context(), audioPayload(t))
	if !errors.Is(err, domain.ErrTranscription) {
		t.Fatalf("err = %v", err)
	}
	if len(f.store.writes) != 0 {
		t.Error("no partial writes after transcription failure")
	}
}

func TestProcess_ClassificationContractViolations(t *testing.T) {
	tests := []struct {
		name string
		meta *domain.MessageMetadata
	}{
		{"unrecognized intent", &domain.MessageMetadata{Intent: "todo-list", Tag: "x"}},
		{"tag sanitizes to empty", &domain.MessageMetadata{Intent: domain.IntentOther, Tag: "!!!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.analyzer.meta = tt.meta

			_, err := f.processor.Process(t.Context(), textPayload(t, "hi"))
			if !errors.Is(err, domain.ErrBadClassification) {
				t.Fatalf("err = %v, want ErrBadClassification", err)
			}
			if len(f.store.writes) != 0 {
				t.Error("no writes after classification failure")
			}
		})
	}
}

func TestProcess_RedeliveryCollides(t *testing.T) {
	f := newFixture()
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentJobToBeDone, Tag: "johnson-job"}
	f.analyzer.doc = domain.NewJobDocument(&domain.JobsToBeDone{
		Summary: "s", Job: "j", Context: "c", ActionItems: []string{"a"},
	})

	payload := textPayload(t, "first delivery")
	if _, err := f.processor.Process(t.Context(), payload); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	firstWrites := len(f.store.writes)
	fullTextData := f.store.objects["comp_1/job-to-be-done/johnson-job_SM12345678_full_text.txt"]

	// Second delivery of the same message collides on the first write.
	_, err := f.processor.Process(t.Context(), payload)
	if !errors.Is(err, domain.ErrObjectExists) {
		t.Fatalf("redelivery err = %v, want ErrObjectExists", err)
	}
	if len(f.store.writes) != firstWrites {
		t.Error("redelivery must not add writes")
	}
	if string(f.store.objects["comp_1/job-to-be-done/johnson-job_SM12345678_full_text.txt"]) != string(fullTextData) {
		t.Error("redelivery must not corrupt prior artifacts")
	}

	// The acknowledgement is not idempotence-protected: the sender got a
	// second ack but no second final reply.
	acks := 0
	for _, m := range f.messenger.sent {
		if strings.Contains(m.Body, "Message received, processing") {
			acks++
		}
	}
	if acks != 2 {
		t.Errorf("acks = %d, want 2 across both deliveries", acks)
	}
}

func TestProcess_PartialWriteNoRollback(t *testing.T) {
	f := newFixture()
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentJobToBeDone, Tag: "johnson-job"}
	f.analyzer.doc = domain.NewJobDocument(&domain.JobsToBeDone{
		Summary: "s", Job: "j", Context: "c", ActionItems: []string{"a"},
	})
	f.store.failKey = "_text_summary"

	_, err := f.processor.Process(t.Context(), textPayload(t, "body"))
	if err == nil {
		t.Fatal("expected summary write failure")
	}
	// full_text stays; there is no cross-object transaction.
	if len(f.store.writes) != 1 || !strings.HasSuffix(f.store.writes[0], "_full_text.txt") {
		t.Errorf("writes = %v", f.store.writes)
	}
}

func TestProcess_EmptyBodyIsValidContent(t *testing.T) {
	f := newFixture()
	f.analyzer.meta = &domain.MessageMetadata{Intent: domain.IntentOther, Tag: "empty-note"}

	result, err := f.processor.Process(t.Context(), textPayload(t, ""))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.ContentLength != 0 {
		t.Errorf("ContentLength = %d", result.ContentLength)
	}
	if len(f.store.writes) != 1 {
		t.Errorf("writes = %v", f.store.writes)
	}
}
