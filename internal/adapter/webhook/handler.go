package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"fieldnote/internal/adapter/whatsapp"
	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// emptyTwiML is the response Twilio expects when the webhook has nothing
// to say inline; the reply goes out later via the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Enqueuer hands a validated webhook form to the processing queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, form url.Values) (string, error)
}

// Handler is the inbound webhook edge: it authenticates the request with
// the provider signature, screens the sender against the allow-list, and
// enqueues the form for the worker. No processing happens here.
type Handler struct {
	authToken string
	publicURL string
	allowed   map[string]struct{}
	queue     Enqueuer
	logger    *slog.Logger
}

// NewHandler creates the webhook edge handler. An empty allow-list admits
// every signed request; tenant resolution still gates processing later.
func NewHandler(twilioCfg config.TwilioConfig, webhookCfg config.WebhookConfig, queue Enqueuer, logger *slog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(twilioCfg.AllowedNumbers))
	for _, n := range twilioCfg.AllowedNumbers {
		allowed[strings.TrimPrefix(n, "whatsapp:")] = struct{}{}
	}
	return &Handler{
		authToken: twilioCfg.AuthToken,
		publicURL: strings.TrimRight(webhookCfg.PublicURL, "/"),
		allowed:   allowed,
		queue:     queue,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Twilio-Signature")
	requestURL := h.publicURL + r.URL.Path
	if err := whatsapp.VerifySignature(h.authToken, requestURL, r.PostForm, signature); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	payload, err := domain.ParseWebhookPayload(r.PostForm)
	if err != nil {
		h.logger.Warn("webhook payload rejected", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if !h.senderAllowed(payload.SenderNumber()) {
		h.logger.Warn("sender not on allow-list", "from", payload.SenderNumber())
		http.Error(w, "sender not allowed", http.StatusForbidden)
		return
	}

	queueID, err := h.queue.Enqueue(r.Context(), r.PostForm)
	if err != nil {
		h.logger.Error("enqueue failed", "message_sid", payload.MessageSID, "error", err)
		// Twilio retries non-2xx deliveries.
		http.Error(w, "enqueue failed", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("webhook accepted", "message_sid", payload.MessageSID, "queue_message_id", queueID)
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(emptyTwiML))
}

func (h *Handler) senderAllowed(number string) bool {
	if len(h.allowed) == 0 {
		return true
	}
	_, ok := h.allowed[number]
	return ok
}
