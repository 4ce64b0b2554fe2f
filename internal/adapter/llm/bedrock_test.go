package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"fieldnote/internal/domain"
)

// fakeConverse returns a fixed assistant text (or error).
type fakeConverse struct {
	text string
	err  error

	gotInput *bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.gotInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: f.text},
				},
			},
		},
	}, nil
}

func newTestBedrock(t *testing.T, client bedrockConverseAPI) *BedrockAnalyzer {
	t.Helper()
	a, err := newBedrockAnalyzerWithClient("anthropic.claude-3-haiku", client, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("newBedrockAnalyzerWithClient: %v", err)
	}
	return a
}

func TestBedrockClassify(t *testing.T) {
	fake := &fakeConverse{text: `{"intent":"knowledge-document","tag":"pipe sizing notes"}`}
	a := newTestBedrock(t, fake)

	meta, err := a.Classify(context.Background(), "22mm for mains")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if meta.Intent != domain.IntentKnowledgeDocument {
		t.Errorf("Intent = %q", meta.Intent)
	}
	if meta.Tag != "pipe-sizing-notes" {
		t.Errorf("Tag = %q", meta.Tag)
	}

	if fake.gotInput == nil || len(fake.gotInput.System) == 0 {
		t.Fatal("converse input missing system prompt")
	}
	sys, ok := fake.gotInput.System[0].(*types.SystemContentBlockMemberText)
	if !ok || sys.Value == "" {
		t.Error("system block should carry the prompt and schema")
	}
}

func TestBedrockClassify_FencedOutput(t *testing.T) {
	fake := &fakeConverse{text: "```json\n{\"intent\":\"other\",\"tag\":\"chit chat\"}\n```"}
	a := newTestBedrock(t, fake)

	meta, err := a.Classify(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if meta.Intent != domain.IntentOther {
		t.Errorf("Intent = %q", meta.Intent)
	}
}

func TestBedrockExtract(t *testing.T) {
	fake := &fakeConverse{text: `{"summary":"s","job":"j","context":"c","action_items":["a"]}`}
	a := newTestBedrock(t, fake)

	doc, err := a.Extract(context.Background(), "text", domain.IntentJobToBeDone)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBedrockExtract_SchemaViolation(t *testing.T) {
	fake := &fakeConverse{text: `{"title":"t"}`}
	a := newTestBedrock(t, fake)

	_, err := a.Extract(context.Background(), "text", domain.IntentKnowledgeDocument)
	if !errors.Is(err, domain.ErrBadClassification) {
		t.Errorf("err = %v, want ErrBadClassification", err)
	}
}

func TestMapBedrockError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"ThrottlingException", domain.ErrRateLimit},
		{"AccessDeniedException", domain.ErrAuthInvalid},
		{"ServiceUnavailableException", domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: tt.code, Message: "nope"}
			fake := &fakeConverse{err: apiErr}
			a := newTestBedrock(t, fake)

			_, err := a.Classify(context.Background(), "text")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
