package usecase

import (
	"fmt"

	"fieldnote/internal/domain"
)

// ReplyBudget is the hard character limit for one outbound WhatsApp message.
const ReplyBudget = 1600

// Fixed reply templates. The acknowledgement goes out before acquisition;
// the informational reply replaces the three-tier renderer for OTHER.
const (
	ackReply   = "Message received, processing..."
	otherReply = "Message received and processed. Note: This message was classified as informational only."

	replyPrefix = "Successfully ingested the following items:\n\n"
	replySuffix = "\n\nNote: Replies to this message are treated as new requests.\n"
)

// UnsupportedReply is the notice sent for content kinds the pipeline does
// not handle.
func UnsupportedReply(kind domain.ContentClass) string {
	return fmt.Sprintf("Messages of type %s are not supported, please send text/audio.", kind)
}

// Compose renders the final reply for a processed message, bounded to
// ReplyBudget. Three tiers are attempted in order: the full rendering, the
// variant-specific truncated rendering, and a minimal confirmation naming
// only the tag. Composition never fails; the minimal tier always fits.
func Compose(doc *domain.StructuredDocument, tag string) string {
	if doc == nil {
		return otherReply
	}

	if full := replyPrefix + doc.Format() + replySuffix; len(full) <= ReplyBudget {
		return full
	}
	if truncated := replyPrefix + doc.FormatTruncated() + replySuffix; len(truncated) <= ReplyBudget {
		return truncated
	}

	minimal := "Successfully uploaded: " + tag
	if wrapped := replyPrefix + minimal + replySuffix; len(wrapped) <= ReplyBudget {
		return wrapped
	}
	if len(minimal) > ReplyBudget {
		minimal = minimal[:ReplyBudget]
	}
	return minimal
}
