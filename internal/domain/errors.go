package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrUnauthorizedSender = fmt.Errorf("unauthorized sender")
	ErrObjectExists       = fmt.Errorf("object already exists")
	ErrBadClassification  = fmt.Errorf("classification contract violation")
	ErrTranscription      = fmt.Errorf("transcription failed")
	ErrMediaDownload      = fmt.Errorf("media download failed")

	// Provider / transport errors.
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrProviderError = fmt.Errorf("provider error")
)

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeUnauthorizedSender ErrorCode = "UNAUTHORIZED_SENDER"
	CodeObjectExists       ErrorCode = "OBJECT_EXISTS"
	CodeBadClassification  ErrorCode = "BAD_CLASSIFICATION"
	CodeTranscription      ErrorCode = "TRANSCRIPTION"
	CodeMediaDownload      ErrorCode = "MEDIA_DOWNLOAD"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrInvalidInput:       CodeInvalidInput,
	ErrUnauthorizedSender: CodeUnauthorizedSender,
	ErrObjectExists:       CodeObjectExists,
	ErrBadClassification:  CodeBadClassification,
	ErrTranscription:      CodeTranscription,
	ErrMediaDownload:      CodeMediaDownload,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrProviderError:      CodeProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is and returns CodeUnknown if no
// matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
