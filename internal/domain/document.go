package domain

import (
	"fmt"
	"strings"
)

// JobsToBeDone captures action items extracted from a work-related note.
type JobsToBeDone struct {
	Summary     string   `json:"summary"`
	Job         string   `json:"job"`
	Context     string   `json:"context"`
	ActionItems []string `json:"action_items"`
}

// KnowledgeDocument captures reusable know-how extracted from a note.
type KnowledgeDocument struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Context string `json:"context"`
}

// StructuredDocument is the extractor's output: a tagged union keyed by
// Intent. Exactly one variant pointer is set; IntentOther never produces a
// document at all (callers hold a nil *StructuredDocument instead).
type StructuredDocument struct {
	Intent    Intent             `json:"intent"`
	Job       *JobsToBeDone      `json:"job,omitempty"`
	Knowledge *KnowledgeDocument `json:"knowledge,omitempty"`
}

// NewJobDocument wraps a JobsToBeDone variant.
func NewJobDocument(j *JobsToBeDone) *StructuredDocument {
	return &StructuredDocument{Intent: IntentJobToBeDone, Job: j}
}

// NewKnowledgeDocument wraps a KnowledgeDocument variant.
func NewKnowledgeDocument(k *KnowledgeDocument) *StructuredDocument {
	return &StructuredDocument{Intent: IntentKnowledgeDocument, Knowledge: k}
}

// Validate checks the union invariant: the variant pointer matches Intent.
func (d *StructuredDocument) Validate() error {
	switch d.Intent {
	case IntentJobToBeDone:
		if d.Job == nil || d.Knowledge != nil {
			return fmt.Errorf("%w: %s document carries wrong variant", ErrInvalidInput, d.Intent)
		}
	case IntentKnowledgeDocument:
		if d.Knowledge == nil || d.Job != nil {
			return fmt.Errorf("%w: %s document carries wrong variant", ErrInvalidInput, d.Intent)
		}
	default:
		return fmt.Errorf("%w: no structured document exists for intent %q", ErrInvalidInput, d.Intent)
	}
	return nil
}

// Format renders the full human-readable document, WhatsApp markup included.
func (d *StructuredDocument) Format() string {
	switch d.Intent {
	case IntentJobToBeDone:
		return fmt.Sprintf("*Summary:*\n%s\n\n*Job:*\n%s\n\n*Context:*\n%s\n\n*Action Items:*\n%s\n",
			d.Job.Summary, d.Job.Job, d.Job.Context, bulletList(d.Job.ActionItems))
	case IntentKnowledgeDocument:
		return fmt.Sprintf("*Title:*\n%s\n\n*Summary:*\n%s\n\n*Context:*\n%s\n",
			d.Knowledge.Title, d.Knowledge.Summary, d.Knowledge.Context)
	}
	return ""
}

// FormatTruncated renders the shortened variant used when the full format
// exceeds the reply budget. JobsToBeDone keeps summary and action items;
// KnowledgeDocument keeps title and summary.
func (d *StructuredDocument) FormatTruncated() string {
	switch d.Intent {
	case IntentJobToBeDone:
		return fmt.Sprintf("*Summary:*\n%s\n\n*Action Items:*\n%s\n\n---\nRest of job information truncated.\n",
			d.Job.Summary, bulletList(d.Job.ActionItems))
	case IntentKnowledgeDocument:
		return fmt.Sprintf("*Title:*\n%s\n\n*Summary:*\n%s\n\n---\nRest of knowledge document truncated.\n",
			d.Knowledge.Title, d.Knowledge.Summary)
	}
	return ""
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}
