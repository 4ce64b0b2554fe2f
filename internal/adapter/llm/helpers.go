package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"fieldnote/internal/domain"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// doJSONRequest performs a JSON POST request and returns the response body.
// It handles: create request, set headers, execute, read body (with limit),
// and check HTTP status code. Returns a domain error for non-200 responses.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapHTTPError maps an HTTP status code + response body to a domain error.
// This lets the circuit breaker and the pipeline classify provider failures
// with errors.Is.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, body)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseMetadata turns validated classifier output into domain metadata:
// intent through the enum gate, tag through sanitization.
func parseMetadata(raw []byte) (*domain.MessageMetadata, error) {
	var out struct {
		Intent string `json:"intent"`
		Tag    string `json:"tag"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadClassification, err)
	}

	intent, err := domain.ParseIntent(out.Intent)
	if err != nil {
		return nil, err
	}
	tag, err := domain.SanitizeTag(out.Tag)
	if err != nil {
		return nil, err
	}
	return &domain.MessageMetadata{Intent: intent, Tag: tag}, nil
}

// parseDocument turns validated extractor output into the intent's variant.
func parseDocument(raw []byte, intent domain.Intent) (*domain.StructuredDocument, error) {
	switch intent {
	case domain.IntentJobToBeDone:
		var job domain.JobsToBeDone
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBadClassification, err)
		}
		return domain.NewJobDocument(&job), nil
	case domain.IntentKnowledgeDocument:
		var know domain.KnowledgeDocument
		if err := json.Unmarshal(raw, &know); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBadClassification, err)
		}
		return domain.NewKnowledgeDocument(&know), nil
	}
	return nil, fmt.Errorf("%w: no structured document exists for intent %q", domain.ErrInvalidInput, intent)
}
