package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ArtifactType identifies one of the objects written for a message.
type ArtifactType string

const (
	ArtifactAudio       ArtifactType = "audio"
	ArtifactFullText    ArtifactType = "full_text"
	ArtifactTextSummary ArtifactType = "text_summary"
)

// Key suffixes per artifact type. The summary suffix was historically
// written with a dot separator (".text_summary.txt"); writes use the
// underscore form, reads tolerate both.
const (
	suffixAudio             = "_audio.ogg"
	suffixFullText          = "_full_text.txt"
	suffixTextSummary       = "_text_summary.txt"
	legacySuffixTextSummary = ".text_summary.txt"
)

// ContentType returns the MIME type the artifact is stored with.
func (t ArtifactType) ContentType() string {
	if t == ArtifactAudio {
		return "audio/ogg"
	}
	return "text/plain"
}

func (t ArtifactType) suffix() string {
	switch t {
	case ArtifactAudio:
		return suffixAudio
	case ArtifactFullText:
		return suffixFullText
	case ArtifactTextSummary:
		return suffixTextSummary
	}
	return ""
}

// KeyPrefix builds the shared per-message key prefix
// "{company_id}/{intent}/{tag}_{message_id}". Pure function of its inputs.
func KeyPrefix(companyID string, intent Intent, tag, messageID string) string {
	return fmt.Sprintf("%s/%s/%s_%s", companyID, intent, tag, messageID)
}

// BuildKey derives the deterministic object key for one artifact.
func BuildKey(companyID string, intent Intent, tag, messageID string, t ArtifactType) string {
	return KeyPrefix(companyID, intent, tag, messageID) + t.suffix()
}

// IntentPrefix is the listing prefix for all artifacts of one tenant+intent.
func IntentPrefix(companyID string, intent Intent) string {
	return fmt.Sprintf("%s/%s/", companyID, intent)
}

// messageSIDPattern matches a provider-assigned message SID: two uppercase
// letters followed by at least eight characters (Twilio-style).
var messageSIDPattern = regexp.MustCompile(`^[A-Z]{2}\S{8,}$`)

// ArtifactRef is the read side's decoded view of one stored object key.
type ArtifactRef struct {
	Tag       string
	MessageID string
	Type      ArtifactType
}

// ParseArtifactKey reverses BuildKey for the read-side grouping logic.
// It accepts a full key or a bare filename, determines the artifact type
// from the suffix, and recovers the message ID by locating the SID pattern
// among the underscore-separated parts; everything before it is the tag.
func ParseArtifactKey(key string) (*ArtifactRef, error) {
	filename := key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		filename = key[i+1:]
	}

	var t ArtifactType
	var rest string
	switch {
	case strings.HasSuffix(filename, suffixAudio):
		t, rest = ArtifactAudio, strings.TrimSuffix(filename, suffixAudio)
	case strings.HasSuffix(filename, suffixFullText):
		t, rest = ArtifactFullText, strings.TrimSuffix(filename, suffixFullText)
	case strings.HasSuffix(filename, suffixTextSummary):
		t, rest = ArtifactTextSummary, strings.TrimSuffix(filename, suffixTextSummary)
	case strings.HasSuffix(filename, legacySuffixTextSummary):
		t, rest = ArtifactTextSummary, strings.TrimSuffix(filename, legacySuffixTextSummary)
	default:
		return nil, fmt.Errorf("%w: unrecognized artifact suffix in %q", ErrInvalidInput, filename)
	}

	parts := strings.Split(rest, "_")
	for i := len(parts) - 1; i >= 0; i-- {
		if messageSIDPattern.MatchString(parts[i]) {
			return &ArtifactRef{
				Tag:       strings.Join(parts[:i], "_"),
				MessageID: strings.Join(parts[i:], "_"),
				Type:      t,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no message SID in %q", ErrInvalidInput, filename)
}

// ProcessingStatus is the terminal outcome of processing one message.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusIgnored ProcessingStatus = "ignored"
)

// ProcessingResult is the per-message return contract consumed by the
// batch wrapper. It is produced only on the success and ignored paths;
// fatal conditions propagate as errors instead.
type ProcessingResult struct {
	Status        ProcessingStatus        `json:"status"`
	MessageID     string                  `json:"message_id"`
	StorageKeys   map[ArtifactType]string `json:"storage_keys,omitempty"`
	Metadata      *MessageMetadata        `json:"metadata,omitempty"`
	Document      *StructuredDocument     `json:"document,omitempty"`
	ContentLength int                     `json:"content_length"`
	IgnoredReason string                  `json:"ignored_reason,omitempty"`
}
