package osprey

import (
	"errors"
	"fmt"

	"github.com/divinevideo/osprey/querylang"
)

// InvalidCursorError means a pagination cursor failed to decode. It is an
// invalid-input condition, surfaced as 4xx at the transport layer.
type InvalidCursorError struct {
	Token string
	Cause error
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("invalid pagination cursor %q", e.Token)
}

func (e *InvalidCursorError) Unwrap() error {
	return e.Cause
}

// UpstreamError wraps a failure from the analytics client. Surfaced as 5xx
// at the transport layer; never retried here.
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("analytics query failed: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// IsInvalidCursor reports whether err is an InvalidCursorError.
func IsInvalidCursor(err error) bool {
	var ce *InvalidCursorError
	return errors.As(err, &ce)
}

// IsUpstreamError reports whether err wraps an analytics client failure.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsTranslationError reports whether err stems from filter translation, in
// any of its taxonomy kinds.
func IsTranslationError(err error) bool {
	var te *querylang.TransformError
	return errors.As(err, &te)
}
