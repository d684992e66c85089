package microsoft

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// ErrRateLimited indicates the request was throttled.
var ErrRateLimited = errors.New("microsoft: rate limited")

// StatusError carries the HTTP status of a response the connectors have no rule for.
type StatusError struct {
	Code int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Code)
}

// Unwrap lets errors.Is match domain.ErrUnexpectedStatus.
func (e *StatusError) Unwrap() error {
	return domain.ErrUnexpectedStatus
}

// WrapError converts an HTTP status code to an appropriate error.
// Success codes return nil.
func WrapError(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized:
		return domain.ErrAuthExpired
	case statusCode == http.StatusForbidden:
		return domain.ErrForbidden
	case statusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, &StatusError{Code: statusCode})
	default:
		return &StatusError{Code: statusCode}
	}
}

// StatusCode extracts the HTTP status from err, or 0 when none is attached.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsUnauthorised checks if the status code indicates an authentication failure.
func IsUnauthorised(statusCode int) bool {
	return statusCode == http.StatusUnauthorized
}

// IsRateLimited checks if the status code indicates rate limiting.
func IsRateLimited(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether the status is transient: throttling or a
// gateway that may answer differently later.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
