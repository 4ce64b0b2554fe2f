package domain

import (
	"errors"
	"net/url"
	"testing"
)

func formValues(kv map[string]string) url.Values {
	v := url.Values{}
	for k, val := range kv {
		v.Set(k, val)
	}
	return v
}

func TestParseWebhookPayload_RequiredFields(t *testing.T) {
	_, err := ParseWebhookPayload(formValues(map[string]string{"From": "whatsapp:+14155552671"}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing MessageSid: err = %v, want ErrInvalidInput", err)
	}

	_, err = ParseWebhookPayload(formValues(map[string]string{"MessageSid": "SM0123456789abcdef"}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing From: err = %v, want ErrInvalidInput", err)
	}
}

func TestParseWebhookPayload_ExtrasPreserved(t *testing.T) {
	p, err := ParseWebhookPayload(formValues(map[string]string{
		"MessageSid": "SM0123456789abcdef",
		"From":       "whatsapp:+14155552671",
		"Body":       "hello",
		"SmsStatus":  "received",
		"ApiVersion": "2010-04-01",
	}))
	if err != nil {
		t.Fatalf("ParseWebhookPayload: %v", err)
	}
	if p.Body != "hello" {
		t.Errorf("Body = %q", p.Body)
	}
	if p.Extra["SmsStatus"] != "received" || p.Extra["ApiVersion"] != "2010-04-01" {
		t.Errorf("Extra = %v, want SmsStatus and ApiVersion preserved", p.Extra)
	}
	if _, ok := p.Extra["Body"]; ok {
		t.Error("known field Body leaked into Extra")
	}
}

func TestContentKind(t *testing.T) {
	tests := []struct {
		name    string
		payload WebhookPayload
		want    ContentClass
	}{
		{"declared text wins", WebhookPayload{DeclaredType: "text", NumMedia: 1, MediaContentType: "audio/ogg"}, ContentText},
		{"declared audio", WebhookPayload{DeclaredType: "audio"}, ContentAudio},
		{"declared file maps to document", WebhookPayload{DeclaredType: "file"}, ContentDocument},
		{"no declared type, no media", WebhookPayload{}, ContentText},
		{"audio attachment sniffed", WebhookPayload{NumMedia: 1, MediaContentType: "audio/ogg"}, ContentAudio},
		{"image attachment sniffed", WebhookPayload{NumMedia: 1, MediaContentType: "image/jpeg"}, ContentImage},
		{"video attachment sniffed", WebhookPayload{NumMedia: 1, MediaContentType: "video/mp4"}, ContentVideo},
		{"pdf attachment is document", WebhookPayload{NumMedia: 1, MediaContentType: "application/pdf"}, ContentDocument},
		{"media without content type", WebhookPayload{NumMedia: 1}, ContentUnknown},
		{"unrecognized declared type falls back", WebhookPayload{DeclaredType: "sticker", NumMedia: 1, MediaContentType: "image/webp"}, ContentImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.ContentKind(); got != tt.want {
				t.Errorf("ContentKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContentClassProcessable(t *testing.T) {
	for _, c := range []ContentClass{ContentText, ContentAudio} {
		if !c.Processable() {
			t.Errorf("%s should be processable", c)
		}
	}
	for _, c := range []ContentClass{ContentImage, ContentVideo, ContentDocument, ContentUnknown} {
		if c.Processable() {
			t.Errorf("%s should not be processable", c)
		}
	}
}

func TestMediaReference(t *testing.T) {
	p := WebhookPayload{NumMedia: 1, MediaURL: "https://api.twilio.com/media/ME123"}
	if got := p.MediaReference(); got != "https://api.twilio.com/media/ME123" {
		t.Errorf("MediaReference() = %q", got)
	}

	// A URL without a declared attachment is not a media reference.
	p = WebhookPayload{NumMedia: 0, MediaURL: "https://api.twilio.com/media/ME123"}
	if got := p.MediaReference(); got != "" {
		t.Errorf("MediaReference() = %q, want empty", got)
	}
}

func TestSenderNumber(t *testing.T) {
	p := WebhookPayload{From: "whatsapp:+14155552671"}
	if got := p.SenderNumber(); got != "+14155552671" {
		t.Errorf("SenderNumber() = %q", got)
	}

	// Already bare numbers pass through.
	p = WebhookPayload{From: "+14155552671"}
	if got := p.SenderNumber(); got != "+14155552671" {
		t.Errorf("SenderNumber() = %q", got)
	}
}

func TestWithChannelPrefix(t *testing.T) {
	if got := WithChannelPrefix("+1415"); got != "whatsapp:+1415" {
		t.Errorf("WithChannelPrefix = %q", got)
	}
	if got := WithChannelPrefix("whatsapp:+1415"); got != "whatsapp:+1415" {
		t.Errorf("WithChannelPrefix should be idempotent, got %q", got)
	}
}
