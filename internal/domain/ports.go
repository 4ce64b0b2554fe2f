package domain

import (
	"context"
	"time"
)

// ObjectStore is the write-side storage capability. Upload performs an
// existence check first and fails with ErrObjectExists when the key is
// already present and overwrite is false — this is the pipeline's only
// duplicate-delivery guard.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, data []byte, key, contentType string, overwrite bool) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectPage is one page of a listing. NextToken is empty on the last page.
type ObjectPage struct {
	Objects   []ObjectInfo `json:"files"`
	NextToken string       `json:"nextContinuationToken,omitempty"`
}

// ObjectLister is the read-side storage capability: paginated listing and
// presigned download URLs over the same bucket the pipeline writes to.
type ObjectLister interface {
	List(ctx context.Context, prefix, continuationToken string) (*ObjectPage, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Messenger delivers outbound WhatsApp replies and fetches inbound media.
// SendMessage returns the provider-assigned SID of the sent message.
type Messenger interface {
	SendMessage(ctx context.Context, recipient, body string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// Transcriber converts raw audio bytes to text. The filename is synthetic
// (derived from the message ID) and only informs format detection.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Analyzer is the language-model capability: intent/tag classification and
// intent-specific structured extraction. Extract is never called with
// IntentOther.
type Analyzer interface {
	Classify(ctx context.Context, text string) (*MessageMetadata, error)
	Extract(ctx context.Context, text string, intent Intent) (*StructuredDocument, error)
}
