package domain

import (
	"fmt"
	"testing"
)

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{ErrObjectExists, CodeObjectExists},
		{fmt.Errorf("upload: %w", ErrObjectExists), CodeObjectExists},
		{WrapOp("resolve tenant", ErrUnauthorizedSender), CodeUnauthorizedSender},
		{fmt.Errorf("classify: %w: tag empty", ErrBadClassification), CodeBadClassification},
		{fmt.Errorf("plain error"), CodeUnknown},
	}
	for _, tt := range tests {
		if got := ErrorCodeOf(tt.err); got != tt.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestWrapOp(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
	err := WrapOp("download", ErrMediaDownload)
	if err == nil || err.Error() != "download: media download failed" {
		t.Errorf("WrapOp = %v", err)
	}
}
