package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// maxMediaBytes caps downloaded media size (WhatsApp voice notes are small;
// 32 MB is far above any legitimate attachment).
const maxMediaBytes = 32 * 1024 * 1024

// TwilioClient implements domain.Messenger using the Twilio REST API.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string // overridable for tests
	client     *http.Client
	logger     *slog.Logger
}

// NewTwilioClient creates a Twilio WhatsApp client.
func NewTwilioClient(cfg config.TwilioConfig, logger *slog.Logger) *TwilioClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SendMessage implements domain.Messenger. The recipient may be given with
// or without the whatsapp: prefix; the wire call always carries it.
func (c *TwilioClient) SendMessage(ctx context.Context, recipient, body string) (string, error) {
	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	form := url.Values{
		"From": {c.fromNumber},
		"To":   {domain.WithChannelPrefix(recipient)},
		"Body": {body},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", mapTwilioError(resp.StatusCode, respBody)
	}

	var result struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse twilio response: %w", err)
	}

	c.logger.Info("sent whatsapp message", "sid", result.SID, "status", result.Status, "chars", len(body))
	return result.SID, nil
}

// DownloadMedia implements domain.Messenger. Twilio media URLs require
// basic auth and redirect to the actual blob.
func (c *TwilioClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrMediaDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrMediaDownload, err)
	}

	c.logger.Info("downloaded media", "bytes", len(data))
	return data, nil
}

// mapTwilioError maps an HTTP status + body to a domain error so callers
// can classify with errors.Is.
func mapTwilioError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("twilio API error %d: %s", statusCode, body)
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

// ComputeSignature computes the HMAC-SHA1 Twilio webhook signature over the
// request URL plus the form parameters sorted by key.
func ComputeSignature(authToken, webhookURL string, form url.Values) []byte {
	data := webhookURL
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			data += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// VerifySignature validates the X-Twilio-Signature header value against the
// request URL and form parameters, in constant time.
func VerifySignature(authToken, webhookURL string, form url.Values, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", domain.ErrAuthInvalid)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: invalid signature encoding", domain.ErrAuthInvalid)
	}

	expected := ComputeSignature(authToken, webhookURL, form)
	if !hmac.Equal(sigBytes, expected) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrAuthInvalid)
	}
	return nil
}
