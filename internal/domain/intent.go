package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Intent classifies what a message is for. The value doubles as a storage
// key segment, so the strings are kebab-case.
type Intent string

const (
	IntentJobToBeDone       Intent = "job-to-be-done"
	IntentKnowledgeDocument Intent = "knowledge-document"
	IntentOther             Intent = "other"
)

// Intents lists every valid intent, in storage-listing order.
var Intents = []Intent{IntentJobToBeDone, IntentKnowledgeDocument, IntentOther}

// ParseIntent validates a raw classifier intent. Anything outside the
// three-value enum is a contract violation, never silently coerced.
func ParseIntent(raw string) (Intent, error) {
	switch Intent(raw) {
	case IntentJobToBeDone, IntentKnowledgeDocument, IntentOther:
		return Intent(raw), nil
	}
	return "", fmt.Errorf("%w: unrecognized intent %q", ErrBadClassification, raw)
}

// NeedsExtraction reports whether a structured document is produced for
// this intent. OTHER is stored but never extracted.
func (i Intent) NeedsExtraction() bool {
	return i == IntentJobToBeDone || i == IntentKnowledgeDocument
}

// MessageMetadata is the classifier's output: an intent plus a short
// descriptive tag. The tag is purely descriptive; it participates in key
// construction and nothing else.
type MessageMetadata struct {
	Intent Intent `json:"intent"`
	Tag    string `json:"tag"`
}

var (
	tagSeparators = regexp.MustCompile(`[\s_]+`)
	tagDisallowed = regexp.MustCompile(`[^a-z0-9\-.]`)
	tagHyphenRuns = regexp.MustCompile(`-{2,}`)
)

// SanitizeTag normalizes a raw classifier tag into a storage-key-safe
// token: lowercase, [a-z0-9-.] only, whitespace and underscores collapsed
// to single hyphens, no leading or trailing separators. The classifier's
// raw output is untrusted; a tag that sanitizes to empty is a fatal
// contract violation.
func SanitizeTag(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = tagSeparators.ReplaceAllString(s, "-")
	s = tagDisallowed.ReplaceAllString(s, "")
	s = tagHyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "", fmt.Errorf("%w: tag %q sanitized to empty", ErrBadClassification, raw)
	}
	return s, nil
}
