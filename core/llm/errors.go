package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"
)

// Kind classifies provider failures so callers can decide whether to retry.
type Kind string

const (
	// KindRateLimited means the provider rejected the call due to rate limits. Retryable.
	KindRateLimited Kind = "rate_limited"
	// KindTimeout means the call did not complete within its deadline. Retryable.
	KindTimeout Kind = "timeout"
	// KindUnavailable means the provider returned a server-side failure. Retryable with backoff.
	KindUnavailable Kind = "unavailable"
	// KindInvalidRequest means the request itself is malformed. Not retryable.
	KindInvalidRequest Kind = "invalid_request"
	// KindUnknown is used when no more specific classification applies. Not retryable.
	KindUnknown Kind = "unknown"
)

// Error is a provider failure with a retry classification attached.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying with backoff.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// Classify wraps err with a Kind derived from the underlying provider failure.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: kindForStatus(apiErr.HTTPStatusCode), Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: kindForStatus(reqErr.HTTPStatusCode), Err: err}
	}

	return &Error{Kind: KindUnavailable, Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 408:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err classifies as a retryable provider failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable()
}
