package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
	"fieldnote/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime methods for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAnalyzer implements domain.Analyzer via the AWS Bedrock Converse
// API. Bedrock has no response-format constraint, so the schema travels in
// the system prompt and the output is validated locally before unmarshal.
type BedrockAnalyzer struct {
	model   string
	client  bedrockConverseAPI
	schemas *outputSchemas
	logger  *slog.Logger
}

// NewBedrockAnalyzer creates an analyzer using the default AWS credential chain.
func NewBedrockAnalyzer(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*BedrockAnalyzer, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	schemas, err := compileOutputSchemas()
	if err != nil {
		return nil, err
	}

	return &BedrockAnalyzer{
		model:   cfg.Model,
		client:  bedrockruntime.NewFromConfig(awsCfg),
		schemas: schemas,
		logger:  logger,
	}, nil
}

// newBedrockAnalyzerWithClient creates a BedrockAnalyzer with an injected
// client (for testing).
func newBedrockAnalyzerWithClient(model string, client bedrockConverseAPI, logger *slog.Logger) (*BedrockAnalyzer, error) {
	schemas, err := compileOutputSchemas()
	if err != nil {
		return nil, err
	}
	return &BedrockAnalyzer{model: model, client: client, schemas: schemas, logger: logger}, nil
}

// Classify implements domain.Analyzer.
func (a *BedrockAnalyzer) Classify(ctx context.Context, text string) (*domain.MessageMetadata, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.classify",
		trace.WithAttributes(tracer.StringAttr("llm.model", a.model)),
	)
	defer span.End()

	raw, err := a.converse(ctx, classifyPrompt, classifySchema, text)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := validateOutput(a.schemas.classify, raw); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	meta, err := parseMetadata(raw)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	a.logger.Debug("classified message", "intent", meta.Intent, "tag", meta.Tag)
	return meta, nil
}

// Extract implements domain.Analyzer.
func (a *BedrockAnalyzer) Extract(ctx context.Context, text string, intent domain.Intent) (*domain.StructuredDocument, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.extract",
		trace.WithAttributes(
			tracer.StringAttr("llm.model", a.model),
			tracer.StringAttr("intent", string(intent)),
		),
	)
	defer span.End()

	var prompt, schema string
	switch intent {
	case domain.IntentJobToBeDone:
		prompt, schema = extractJobPrompt, jobSchema
	case domain.IntentKnowledgeDocument:
		prompt, schema = extractKnowledgePrompt, knowledgeSchema
	default:
		err := fmt.Errorf("%w: no structured document exists for intent %q", domain.ErrInvalidInput, intent)
		tracer.RecordError(span, err)
		return nil, err
	}

	raw, err := a.converse(ctx, prompt, schema, text)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := validateOutput(a.schemas.forIntent(intent), raw); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	doc, err := parseDocument(raw, intent)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	a.logger.Debug("extracted document", "intent", intent)
	return doc, nil
}

// converse runs one Converse call and returns the assistant text with any
// code fences stripped.
func (a *BedrockAnalyzer) converse(ctx context.Context, systemPrompt, schema, text string) ([]byte, error) {
	system := systemPrompt + "\n\nRespond with a single JSON object matching this JSON Schema, and nothing else:\n" + schema

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(a.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Analyze this text:\n\n" + text},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(4096),
		},
	}

	output, err := a.client.Converse(ctx, input)
	if err != nil {
		return nil, mapBedrockError(err)
	}

	outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("%w: converse returned no message", domain.ErrProviderError)
	}
	for _, block := range outMsg.Value.Content {
		if b, ok := block.(*types.ContentBlockMemberText); ok {
			return []byte(stripCodeFences(b.Value)), nil
		}
	}
	return nil, fmt.Errorf("%w: converse returned no text content", domain.ErrProviderError)
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrProviderError, msg)
		}
	}

	return domain.WrapOp("bedrock", err)
}

// Compile-time interface check.
var _ domain.Analyzer = (*BedrockAnalyzer)(nil)
