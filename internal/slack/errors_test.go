package slack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{Code: "rate_limited", StatusCode: 429}, true},
		{"internal error", &APIError{Code: "internal_error", StatusCode: 502}, true},
		{"service unavailable", &APIError{Code: "service_unavailable"}, true},
		{"invalid auth", &APIError{Code: "invalid_auth"}, false},
		{"channel not found", &APIError{Code: "channel_not_found"}, false},
		{"not in channel", &APIError{Code: "not_in_channel"}, false},
		{"message too long", &APIError{Code: "msg_too_long"}, false},
		{"unknown api code", &APIError{Code: "some_future_code"}, false},
		{"unknown code with 5xx status", &APIError{Code: "odd", StatusCode: 503}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, true},
		{"dns timeout", &net.DNSError{IsTimeout: true}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, Transient(tt.err))
		})
	}
}

func TestTransientSurvivesWrapping(t *testing.T) {
	inner := &APIError{Code: "rate_limited", StatusCode: 429}
	wrapped := fmt.Errorf("posting reply: %w", inner)

	assert.True(t, Transient(wrapped))
	assert.True(t, IsRateLimited(wrapped))
	assert.Equal(t, "rate_limited", ErrorCode(wrapped))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "invalid_auth", ErrorCode(&APIError{Code: "invalid_auth"}))
	assert.Equal(t, "", ErrorCode(errors.New("no code here")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestRetryAfterHint(t *testing.T) {
	_, ok := RetryAfterHint(errors.New("plain"))
	assert.False(t, ok)

	_, ok = RetryAfterHint(&APIError{Code: "internal_error"})
	assert.False(t, ok)
}
