package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// channelPrefix is the transport prefix Twilio puts on WhatsApp addresses.
const channelPrefix = "whatsapp:"

// ContentClass is the resolved kind of an inbound message.
type ContentClass string

const (
	ContentText     ContentClass = "text"
	ContentAudio    ContentClass = "audio"
	ContentImage    ContentClass = "image"
	ContentVideo    ContentClass = "video"
	ContentDocument ContentClass = "document"
	ContentUnknown  ContentClass = "unknown"
)

// Processable reports whether the pipeline handles this kind of content.
// Everything else short-circuits as "ignored" with a user-facing notice.
func (c ContentClass) Processable() bool {
	return c == ContentText || c == ContentAudio
}

// WebhookPayload is one inbound WhatsApp message as delivered by the
// Twilio webhook: a flat set of form fields. It is constructed once from
// the validated wire payload and read-only thereafter.
type WebhookPayload struct {
	MessageSID string
	AccountSID string

	From        string // "whatsapp:+14155552671"
	To          string
	ProfileName string
	WaID        string

	Body         string
	DeclaredType string // Twilio MessageType, may be empty on older webhooks

	NumMedia         int
	MediaContentType string // primary attachment
	MediaURL         string

	// Extra preserves unrecognized provider fields. Production logic must
	// never branch on it; it exists for logging and signature replay only.
	Extra map[string]string
}

// knownFields are the form keys lifted into named struct fields.
var knownFields = map[string]bool{
	"MessageSid": true, "AccountSid": true, "From": true, "To": true,
	"ProfileName": true, "WaId": true, "Body": true, "MessageType": true,
	"NumMedia": true, "MediaContentType0": true, "MediaUrl0": true,
}

// ParseWebhookPayload builds a WebhookPayload from decoded form values.
// MessageSid and From are required; everything else is optional.
func ParseWebhookPayload(values url.Values) (*WebhookPayload, error) {
	p := &WebhookPayload{
		MessageSID:       values.Get("MessageSid"),
		AccountSID:       values.Get("AccountSid"),
		From:             values.Get("From"),
		To:               values.Get("To"),
		ProfileName:      values.Get("ProfileName"),
		WaID:             values.Get("WaId"),
		Body:             values.Get("Body"),
		DeclaredType:     values.Get("MessageType"),
		MediaContentType: values.Get("MediaContentType0"),
		MediaURL:         values.Get("MediaUrl0"),
	}

	if p.MessageSID == "" {
		return nil, fmt.Errorf("%w: missing MessageSid", ErrInvalidInput)
	}
	if p.From == "" {
		return nil, fmt.Errorf("%w: missing From", ErrInvalidInput)
	}

	if raw := values.Get("NumMedia"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: NumMedia %q is not a number", ErrInvalidInput, raw)
		}
		p.NumMedia = n
	}

	for k := range values {
		if knownFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[k] = values.Get(k)
	}

	return p, nil
}

// ContentKind resolves the message's content class. An explicit declared
// type wins when recognized; otherwise fall back to media count and
// content-type sniffing the way older webhook formats require.
func (p *WebhookPayload) ContentKind() ContentClass {
	switch strings.ToLower(p.DeclaredType) {
	case "text":
		return ContentText
	case "audio":
		return ContentAudio
	case "image":
		return ContentImage
	case "video":
		return ContentVideo
	case "document", "file":
		return ContentDocument
	}

	if p.NumMedia == 0 {
		return ContentText
	}

	ct := strings.ToLower(p.MediaContentType)
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return ContentAudio
	case strings.HasPrefix(ct, "image/"):
		return ContentImage
	case strings.HasPrefix(ct, "video/"):
		return ContentVideo
	case ct != "":
		return ContentDocument
	}
	return ContentUnknown
}

// MediaReference returns the primary media locator, or "" when the message
// declares no attachments.
func (p *WebhookPayload) MediaReference() string {
	if p.NumMedia > 0 {
		return p.MediaURL
	}
	return ""
}

// SenderNumber returns the bare sender identifier with the channel prefix
// stripped. Used for tenant lookup; replies re-add the prefix.
func (p *WebhookPayload) SenderNumber() string {
	return strings.TrimPrefix(p.From, channelPrefix)
}

// WithChannelPrefix ensures the Twilio WhatsApp address prefix is present.
func WithChannelPrefix(number string) string {
	if strings.HasPrefix(number, channelPrefix) {
		return number
	}
	return channelPrefix + number
}
