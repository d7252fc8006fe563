package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a backend failure.
type Kind int

const (
	KindFatal Kind = iota
	KindAuth
	KindContentTooSmall
	KindCacheExpired
	KindRateLimited
	KindOverloaded
	KindBlocked
)

var kindNames = map[Kind]string{
	KindFatal:           "fatal",
	KindAuth:            "auth",
	KindContentTooSmall: "content_too_small",
	KindCacheExpired:    "cache_expired",
	KindRateLimited:     "rate_limited",
	KindOverloaded:      "overloaded",
	KindBlocked:         "blocked",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether calls failing with k are retried with backoff.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindOverloaded
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrFatal           = errors.New("llm: backend error")
	ErrAuth            = errors.New("llm: authentication failed")
	ErrContentTooSmall = errors.New("llm: content too small to cache")
	ErrCacheExpired    = errors.New("llm: cache expired or not found")
	ErrRateLimited     = errors.New("llm: rate limited")
	ErrOverloaded      = errors.New("llm: backend overloaded")
	ErrBlocked         = errors.New("llm: response blocked")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindContentTooSmall:
		return ErrContentTooSmall
	case KindCacheExpired:
		return ErrCacheExpired
	case KindRateLimited:
		return ErrRateLimited
	case KindOverloaded:
		return ErrOverloaded
	case KindBlocked:
		return ErrBlocked
	default:
		return ErrFatal
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewError returns a classified error wrapping err.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

type statusCoder interface {
	HTTPStatusCode() int
}

type retryAfterer interface {
	RetryAfter() time.Duration
}

// Classify maps err to a Kind using, in order: an embedded *Error, message
// fragments that identify cache state, the HTTP status of the backend
// response, and other well-known message fragments. Gemini reports a missing
// or expired cache as 403 or 404 depending on the endpoint, so the message
// wins over the status there.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, "too small", "minimum token count", "min_total_token_count", "cached content is too small") {
		return KindContentTooSmall
	}
	if containsAny(msg, "cachedcontent not found", "cached content not found", "cache not found",
		"cachedcontent has expired", "cache expired") {
		return KindCacheExpired
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatusCode(); {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return KindAuth
		case code == http.StatusNotFound:
			if containsAny(msg, "cachedcontent", "cached content") {
				return KindCacheExpired
			}
			return KindFatal
		case code == http.StatusTooManyRequests:
			return KindRateLimited
		case code == http.StatusRequestTimeout || code >= 500:
			return KindOverloaded
		}
	}

	switch {
	case containsAny(msg, "api key not valid", "api_key_invalid", "permission_denied", "unauthenticated"):
		return KindAuth
	case containsAny(msg, "resource_exhausted", "rate limit", "quota"):
		return KindRateLimited
	case containsAny(msg, "overloaded", "unavailable"):
		return KindOverloaded
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindOverloaded
	}
	return KindFatal
}

// Classified wraps err as an *Error unless it already is one or is a context error.
func Classified(err error, message string) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewError(Classify(err), message, err)
}

func retryAfterHint(err error) time.Duration {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
