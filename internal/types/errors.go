package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedURL = errors.New("malformed URL")
	ErrTransport    = errors.New("transport error")
	ErrStore        = errors.New("store error")
	ErrCancelled    = errors.New("cancelled")
	ErrRetryLater   = errors.New("retry later")
	ErrItemNotFound = errors.New("item not found")
	ErrEmptyURL     = errors.New("URL cannot be empty")
)

// TransportError is a retryable failure talking to the remote side.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

// Malformed wraps err so it matches ErrMalformedURL.
func Malformed(rawURL string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}
	return fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
}

// IsCancellation reports whether err comes from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Retryable reports whether a failed run should be scheduled again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryLater) || errors.Is(err, ErrStore)
}
