package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
	"fieldnote/internal/infra/tracer"
)

// OpenAIClient implements domain.Analyzer and domain.Transcriber against the
// OpenAI API (or any compatible endpoint via BaseURL).
type OpenAIClient struct {
	model           string
	transcribeModel string
	apiKey          string
	baseURL         string
	client          *http.Client
	schemas         *outputSchemas
	logger          *slog.Logger
}

// NewOpenAIClient creates a client with configured timeouts.
func NewOpenAIClient(cfg config.LLMConfig, logger *slog.Logger) (*OpenAIClient, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	schemas, err := compileOutputSchemas()
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIClient{
		model:           cfg.Model,
		transcribeModel: cfg.TranscribeModel,
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		client:          &http.Client{Timeout: timeout},
		schemas:         schemas,
		logger:          logger,
	}, nil
}

// Classify implements domain.Analyzer.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (*domain.MessageMetadata, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.classify",
		trace.WithAttributes(tracer.StringAttr("llm.model", c.model)),
	)
	defer span.End()

	raw, err := c.structuredCompletion(ctx, classifyPrompt, text, "message_metadata", classifySchema)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := validateOutput(c.schemas.classify, raw); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	meta, err := parseMetadata(raw)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	c.logger.Debug("classified message", "intent", meta.Intent, "tag", meta.Tag)
	return meta, nil
}

// Extract implements domain.Analyzer.
func (c *OpenAIClient) Extract(ctx context.Context, text string, intent domain.Intent) (*domain.StructuredDocument, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.extract",
		trace.WithAttributes(
			tracer.StringAttr("llm.model", c.model),
			tracer.StringAttr("intent", string(intent)),
		),
	)
	defer span.End()

	var prompt, schemaName, schema string
	switch intent {
	case domain.IntentJobToBeDone:
		prompt, schemaName, schema = extractJobPrompt, "jobs_to_be_done", jobSchema
	case domain.IntentKnowledgeDocument:
		prompt, schemaName, schema = extractKnowledgePrompt, "knowledge_document", knowledgeSchema
	default:
		err := fmt.Errorf("%w: no structured document exists for intent %q", domain.ErrInvalidInput, intent)
		tracer.RecordError(span, err)
		return nil, err
	}

	raw, err := c.structuredCompletion(ctx, prompt, text, schemaName, schema)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := validateOutput(c.schemas.forIntent(intent), raw); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	doc, err := parseDocument(raw, intent)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	c.logger.Debug("extracted document", "intent", intent)
	return doc, nil
}

// structuredCompletion runs one chat completion constrained to a JSON
// schema and returns the raw content of the first choice.
func (c *OpenAIClient) structuredCompletion(ctx context.Context, systemPrompt, text, schemaName, schema string) ([]byte, error) {
	req := openaiChatRequest{
		Model: c.model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Analyze this text:\n\n" + text},
		},
		ResponseFormat: &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiJSONSchema{
				Name:   schemaName,
				Strict: true,
				Schema: json.RawMessage(schema),
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/chat/completions", body, c.authHeaders())
	if err != nil {
		return nil, err
	}

	var resp openaiChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", domain.ErrProviderError)
	}
	if refusal := resp.Choices[0].Message.Refusal; refusal != "" {
		return nil, fmt.Errorf("%w: model refused request: %s", domain.ErrBadClassification, refusal)
	}

	return []byte(stripCodeFences(resp.Choices[0].Message.Content)), nil
}

// Transcribe implements domain.Transcriber via the audio transcription
// endpoint. The filename carries the format hint (".ogg" for voice notes).
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.transcribe",
		trace.WithAttributes(
			tracer.StringAttr("llm.model", c.transcribeModel),
			tracer.IntAttr("audio_bytes", len(audio)),
		),
	)
	defer span.End()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range c.authHeaders() {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrTranscription, err)
		tracer.RecordError(span, err)
		return "", err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrTranscription, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: %v", domain.ErrTranscription, mapHTTPError(httpResp.StatusCode, respBody))
		tracer.RecordError(span, err)
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", domain.ErrTranscription, err)
	}

	tracer.SetOK(span)
	c.logger.Info("transcribed audio", "bytes", len(audio), "chars", len(result.Text))
	return result.Text, nil
}

func (c *OpenAIClient) authHeaders() map[string]string {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	return headers
}

// --- OpenAI API wire types ---

type openaiChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openaiJSONSchema `json:"json_schema,omitempty"`
}

type openaiJSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// Compile-time interface checks.
var (
	_ domain.Analyzer    = (*OpenAIClient)(nil)
	_ domain.Transcriber = (*OpenAIClient)(nil)
)
