package auth

import (
	"fmt"
	"net/http"
)

// Kind classifies token acquisition failures so callers can handle each
// failure mode exhaustively instead of matching on message text.
type Kind int

const (
	KindConfiguration     Kind = iota // required configuration missing
	KindUpstreamRejected              // issuance endpoint returned non-2xx
	KindMalformedResponse             // 2xx response with an unusable payload
	KindNetworkFailure                // request did not complete
)

// String returns a stable label for the failure kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindMalformedResponse:
		return "malformed_response"
	case KindNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// TokenError is the error surfaced by [TokenCache] for every failed
// token acquisition. Status is an HTTP-equivalent code: the upstream's
// own status for rejections, 502 for malformed or network failures, and
// 500 for configuration errors.
type TokenError struct {
	Kind    Kind
	Status  int
	Message string
	Details any
	cause   error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token request failed (%s, status %d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap exposes the underlying cause for [errors.Is] and [errors.As].
func (e *TokenError) Unwrap() error {
	return e.cause
}

func configError(message string, cause error) *TokenError {
	return &TokenError{
		Kind:    KindConfiguration,
		Status:  http.StatusInternalServerError,
		Message: message,
		cause:   cause,
	}
}

func upstreamError(status int, message string, details any) *TokenError {
	return &TokenError{
		Kind:    KindUpstreamRejected,
		Status:  status,
		Message: message,
		Details: details,
	}
}

func malformedError(message string, cause error) *TokenError {
	return &TokenError{
		Kind:    KindMalformedResponse,
		Status:  http.StatusBadGateway,
		Message: message,
		cause:   cause,
	}
}

func networkError(cause error) *TokenError {
	return &TokenError{
		Kind:    KindNetworkFailure,
		Status:  http.StatusBadGateway,
		Message: cause.Error(),
		cause:   cause,
	}
}
