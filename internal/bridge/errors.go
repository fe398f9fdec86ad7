package bridge

import (
	"errors"
	"fmt"
)

// ErrUnauthorized reports a webhook secret mismatch.
var ErrUnauthorized = errors.New("webhook secret mismatch")

// ValidationError reports a missing or malformed required field. It maps
// to a 4xx response and is never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// UpstreamError reports a failed submission to the execution backend, the
// only dependency failure surfaced on the tool-call path.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("execution submission failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
