package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different types of transient failures
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Class groups failures by how the crawler reacts to them
type Class int

const (
	ClassTransient Class = iota
	ClassRateLimit
	ClassPermanent
	ClassProxy
	ClassConfiguration
)

func (c Class) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassPermanent:
		return "permanent"
	case ClassProxy:
		return "proxy"
	case ClassConfiguration:
		return "configuration"
	default:
		return "transient"
	}
}

// RateLimitError is returned when the platform reports an exhausted quota.
// Resource and API identify the window, e.g. "statuses" and "/statuses/user_timeline".
type RateLimitError struct {
	Resource string
	API      string
	// Reset is the window reset time announced in the response headers, zero if absent
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("rate limit exceeded for %s %s", e.Resource, e.API)
	}
	return fmt.Sprintf("rate limit exceeded for %s %s (reset at %s)", e.Resource, e.API, e.Reset.UTC().Format(time.RFC3339))
}

// TransientError covers every recoverable failure that is not a rate limit
type TransientError struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError means the target itself is gone and should not be crawled again
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error (code %d): %s", e.Code, e.Message)
}

// ProxyError reports a proxy that failed its liveness check
type ProxyError struct {
	Address string
	Err     error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s is not reachable: %v", e.Address, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// ConfigurationError is fatal at startup
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigurationError is a shorthand used by loaders
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewTransient wraps err as a transient failure of the given type
func NewTransient(t ErrorType, code int, message string, err error) *TransientError {
	return &TransientError{Type: t, Code: code, Message: message, Err: err}
}

// Classify maps an error to the reaction class. Unknown errors are transient.
func Classify(err error) Class {
	var (
		rl   *RateLimitError
		perm *PermanentError
		px   *ProxyError
		cfg  *ConfigurationError
	)
	switch {
	case errors.As(err, &rl):
		return ClassRateLimit
	case errors.As(err, &perm):
		return ClassPermanent
	case errors.As(err, &px):
		return ClassProxy
	case errors.As(err, &cfg):
		return ClassConfiguration
	default:
		return ClassTransient
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// TypeForStatus picks the transient error type for an HTTP status
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
