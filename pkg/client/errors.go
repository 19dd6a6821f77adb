package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingCredential is returned before any network call when no
	// access token is configured.
	ErrMissingCredential = errors.New("access token not configured")

	// ErrInvalidPath is returned when a path carries its own query string.
	ErrInvalidPath = errors.New("path must not contain a query string")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNetwork wraps failures where no HTTP response was received.
	ErrNetwork = errors.New("network error")
)

// Graph API error codes reserved for throttling.
const (
	// CodeUserRequestLimit is "User request limit reached".
	CodeUserRequestLimit = 17

	// CodeAdAccountRequestLimit is "There have been too many calls to this ad-account".
	CodeAdAccountRequestLimit = 80004
)

// UpstreamError is an error envelope returned by the Graph API:
// {"error": {"message", "type", "code", "error_subcode", "fbtrace_id"}}.
type UpstreamError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Graph API error"
	}
	if e.Subcode != 0 {
		return fmt.Sprintf("graph api %s error (code %d, subcode %d): %s", e.Type, e.Code, e.Subcode, msg)
	}
	return fmt.Sprintf("graph api %s error (code %d): %s", e.Type, e.Code, msg)
}

// IsRateLimited reports whether the error is a throttling error.
func (e *UpstreamError) IsRateLimited() bool {
	return e.Code == CodeUserRequestLimit || e.Code == CodeAdAccountRequestLimit
}

// TransportError is a non-2xx response without a Graph API error envelope.
type TransportError struct {
	HTTPStatus int
	Body       string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.HTTPStatus, e.Body)
}

// IsRateLimited reports whether err carries a throttling UpstreamError.
func IsRateLimited(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.IsRateLimited()
}

// classify returns the metrics class of a request error.
func classify(err error) ErrorClass {
	var (
		upstream  *UpstreamError
		transport *TransportError
	)
	switch {
	case errors.As(err, &upstream):
		if upstream.IsRateLimited() {
			return ErrorClassRateLimit
		}
		return ErrorClassUpstream
	case errors.As(err, &transport):
		if transport.HTTPStatus >= 500 {
			return ErrorClassServer
		}
		return ErrorClassClient
	case errors.Is(err, ErrMissingCredential):
		return ErrorClassCredential
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrContextCancelled):
		return ErrorClassNetwork
	default:
		return ""
	}
}

// isTransportFailure reports whether err means the upstream was unreachable
// or failing. Error envelopes prove the API answered and do not count.
func isTransportFailure(err error) bool {
	switch classify(err) {
	case ErrorClassServer, ErrorClassNetwork:
		return !errors.Is(err, ErrContextCancelled)
	default:
		return false
	}
}
