package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"rate limit", &RateLimitError{Resource: "statuses", API: "/statuses/user_timeline"}, ClassRateLimit},
		{"wrapped rate limit", fmt.Errorf("fetch: %w", &RateLimitError{Resource: "search"}), ClassRateLimit},
		{"permanent", &PermanentError{Code: 404, Message: "user not found"}, ClassPermanent},
		{"proxy", &ProxyError{Address: "10.0.0.1:8080", Err: errors.New("timeout")}, ClassProxy},
		{"configuration", NewConfigurationError("apikeys", "no credential sets"), ClassConfiguration},
		{"transient", NewTransient(ErrorTypeNetwork, 0, "dial", errors.New("refused")), ClassTransient},
		{"plain error", errors.New("boom"), ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransient(ErrorTypeNetwork, 0, "request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network error (code 0)")
}

func TestRateLimitErrorMessage(t *testing.T) {
	err := &RateLimitError{Resource: "search", API: "/search/tweets"}
	assert.Equal(t, "rate limit exceeded for search /search/tweets", err.Error())

	err.Reset = time.Unix(1700000000, 0)
	assert.Contains(t, err.Error(), "reset at 2023-11-14T22:13:20Z")
}

func TestTypeForStatus(t *testing.T) {
	assert.Equal(t, ErrorTypeNetwork, TypeForStatus(0))
	assert.Equal(t, ErrorTypeAuth, TypeForStatus(401))
	assert.Equal(t, ErrorTypeAuth, TypeForStatus(403))
	assert.Equal(t, ErrorTypeServerError, TypeForStatus(503))
	assert.Equal(t, ErrorTypeUnknown, TypeForStatus(400))
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(502))
	assert.True(t, IsRetryableStatusCode(599))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(400))
}
