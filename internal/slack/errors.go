package slack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// APIError is a Slack Web API level failure: either a non-2xx HTTP status or
// an ok=false envelope with an error code.
type APIError struct {
	Code       string
	StatusCode int
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("slack API error: %s", e.Code)
	}
	return fmt.Sprintf("slack API error: status %d", e.StatusCode)
}

// Error codes the API can recover from on a later attempt.
var transientCodes = map[string]bool{
	"rate_limited":        true,
	"ratelimited":         true,
	"internal_error":      true,
	"service_unavailable": true,
	"request_timeout":     true,
	"fatal_error":         true,
}

// Error codes that will not succeed no matter how often they are retried.
var terminalCodes = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"token_revoked":     true,
	"account_inactive":  true,
	"missing_scope":     true,
	"channel_not_found": true,
	"not_in_channel":    true,
	"is_archived":       true,
	"msg_too_long":      true,
	"no_text":           true,
}

// Transient reports whether err is worth retrying: rate limits, 5xx responses
// and network-level failures. Unknown API error codes are treated as terminal.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return true
		}
		if terminalCodes[apiErr.Code] {
			return false
		}
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return false
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "rate_limited" || apiErr.Code == "ratelimited" ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// RetryAfterHint returns the server-provided retry delay, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// ErrorCode extracts the API error code for logging, or "" for non-API errors.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
