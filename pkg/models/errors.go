package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrItemGone          = errors.New("source item no longer exists")
	ErrAuthExpired       = errors.New("sink authentication expired")
	ErrAuthUnavailable   = errors.New("no usable credentials")
	ErrQuotaExceeded     = errors.New("sink quota exceeded")
	ErrTransientIO       = errors.New("transient sink error")
	ErrConfiguration     = errors.New("configuration error")
	ErrOversized         = errors.New("item exceeds the configured size limit")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
)

// RateLimitedError asks the caller to wait exactly RetryAfter before retrying
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// ErrorKind drives the retry decision
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
	KindRateLimited
	KindAuth
	KindQuota
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindConfiguration:
		return "configuration"
	default:
		return "permanent"
	}
}

// Classify maps an error chain onto the retry taxonomy.
// Cancellation is permanent for the item that observed it.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var rl *RateLimitedError
	switch {
	case errors.As(err, &rl):
		return KindRateLimited
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrAuthUnavailable):
		return KindConfiguration
	case errors.Is(err, ErrAuthExpired):
		return KindAuth
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrItemGone), errors.Is(err, ErrOversized):
		return KindPermanent
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrTransientIO),
		errors.Is(err, ErrChecksumMismatch):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}

// IsRetryable reports whether a retry could change the outcome
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindRateLimited, KindAuth:
		return true
	default:
		return false
	}
}

// Configuration marks cause as a run-aborting configuration error
func Configuration(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfiguration, msg, cause)
}
