package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an upload failure. The cascade uses the kind to decide
// whether to retry, refresh a session, pause, or move to the next strategy.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a caller error. Never retried.
	KindValidation
	// KindNetwork is a transient transport failure. Retried with backoff.
	KindNetwork
	// KindAuth means the platform rejected our credentials. One session
	// refresh is attempted before giving up on the strategy.
	KindAuth
	// KindRateLimit pauses the whole cascade for the platform until the
	// platform-reported reset time.
	KindRateLimit
	// KindEgressExhausted means no configured egress path verified. The
	// strategy is unavailable, not failed.
	KindEgressExhausted
	// KindStrategyExhausted is the per-platform terminal failure.
	KindStrategyExhausted
	// KindPlatform is a platform-side error with an opaque code.
	KindPlatform
	// KindStoreUnavailable is fatal to the orchestrator loop.
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindEgressExhausted:
		return "egress_exhausted"
	case KindStrategyExhausted:
		return "strategy_exhausted"
	case KindPlatform:
		return "platform"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is the typed error carried across the upload path.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	// RetryAfter is set on rate-limit errors when the platform reported a
	// reset time. Zero means the caller picks the wait.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an error with a kind and message.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WrapWithCode wraps a platform error keeping its opaque code.
func WrapWithCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPlatform, Code: code, Message: message, Err: err}
}

// RateLimited builds a rate-limit error with the platform-reported reset.
func RateLimited(err error, retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimit, Message: "rate limited", Err: err, RetryAfter: retryAfter}
}

// KindOf returns the kind of err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the reset hint of a rate-limit error, zero otherwise.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// GetCode returns the platform error code if it exists.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err should be retried within a strategy.
func IsTransient(err error) bool {
	return KindOf(err) == KindNetwork
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsRateLimit reports whether err is a platform rate limit.
func IsRateLimit(err error) bool {
	return KindOf(err) == KindRateLimit
}

// IsValidation reports whether err is a caller error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsEgressExhausted reports whether every egress path failed verification.
func IsEgressExhausted(err error) bool {
	return KindOf(err) == KindEgressExhausted
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
