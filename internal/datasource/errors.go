package datasource

import (
	"errors"
	"fmt"
)

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeServerError          = "server_error"
	ErrCodeUnknown              = "unknown"
)

var (
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("data not found")
	ErrInvalidData          = errors.New("invalid data format")
	ErrServerError          = errors.New("server error")
)

// FeedError describes a failed feed request
type FeedError struct {
	Path    string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("feature feed %s: %s (%d): %s", e.Path, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("feature feed %s: %s (%d)", e.Path, e.Code, e.Status)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// errorForStatus maps a non-2xx response status to a FeedError
func errorForStatus(path string, status int, message string) *FeedError {
	fe := &FeedError{Path: path, Status: status, Message: message}
	switch {
	case status == 404:
		fe.Code, fe.Err = ErrCodeNotFound, ErrNotFound
	case status == 401 || status == 403:
		fe.Code, fe.Err = ErrCodeAuthenticationFailed, ErrAuthenticationFailed
	case status == 429:
		fe.Code, fe.Err = ErrCodeRateLimitExceeded, ErrRateLimitExceeded
	case status >= 500:
		fe.Code, fe.Err = ErrCodeServerError, ErrServerError
	default:
		fe.Code = ErrCodeUnknown
	}
	return fe
}
