package platform

import (
	"errors"
	"fmt"
)

const (
	ErrCodeRateLimited = "rate_limited"
	ErrCodeUnavailable = "unavailable"
	ErrCodeTimeout     = "timeout"
	ErrCodeRejected    = "rejected"
)

// Error is the uniform shape every target-specific failure is mapped into.
// Retryable distinguishes rate limits and upstream outages from permanent
// rejections so the queue backoff policy can apply correctly.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform: %s (%s)", e.Message, e.Code)
}

// IsRetryable reports whether err is a platform error worth retrying.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
