// Package classify maps heterogeneous backend failure signals (HTTP status
// codes, page-text heuristics, transport errors) onto one uniform taxonomy
// shared by every fetch strategy.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the uniform error taxonomy. Every backend-specific signal is
// mapped into exactly one Kind.
type Kind string

const (
	KindUserNotFound   Kind = "user_not_found"
	KindPrivateAccount Kind = "private_account"
	KindAuthRequired   Kind = "auth_required"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindProxyError     Kind = "proxy_error"
	KindNetworkError   Kind = "network_error"
	KindUnknown        Kind = "unknown"
)

// Error is a classified failure. Code carries the origin HTTP status when
// one exists, zero otherwise.
type Error struct {
	Kind    Kind
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error under the given kind.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error()}
}

// IsRetryable reports whether a kind is transient. Terminal kinds fail the
// identity immediately without retry.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindRateLimited, KindNetworkError:
		return true
	default:
		return false
	}
}

// KindOf extracts the classified kind from an error chain; unclassified
// errors are run through FromError first.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return FromError(err).Kind
}

// FromStatusCode maps an HTTP response status onto the taxonomy.
func FromStatusCode(code int, message string) *Error {
	var kind Kind
	switch {
	case code == 404 || code == 410:
		kind = KindUserNotFound
	case code == 401:
		kind = KindAuthRequired
	case code == 403:
		// Some backends report private profiles as 403, others as an auth
		// wall. The message decides; auth wins when ambiguous.
		if k := kindFromMessage(message); k == KindPrivateAccount {
			kind = KindPrivateAccount
		} else {
			kind = KindAuthRequired
		}
	case code == 429:
		kind = KindRateLimited
	case code == 407:
		kind = KindProxyError
	case code == 408 || code == 504:
		kind = KindTimeout
	case code >= 500:
		kind = KindNetworkError
	default:
		if k := kindFromMessage(message); k != KindUnknown {
			kind = k
		} else {
			kind = KindUnknown
		}
	}
	return &Error{Kind: kind, Message: message, Code: code}
}

// FromError classifies a transport-level error. Context deadline and
// net.Error timeouts become KindTimeout; proxy and connection failures map
// to their own kinds; everything else stays KindUnknown.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Wrap(KindTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "proxy"):
		return Wrap(KindProxyError, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Wrap(KindTimeout, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return Wrap(KindNetworkError, err)
	}
	if k := kindFromMessage(msg); k != KindUnknown {
		return Wrap(k, err)
	}
	return Wrap(KindUnknown, err)
}

// FromMessage classifies a backend-supplied error message (API error
// payloads, page text fragments).
func FromMessage(message string) *Error {
	return &Error{Kind: kindFromMessage(message), Message: message}
}

func kindFromMessage(message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case msg == "":
		return KindUnknown
	case strings.Contains(msg, "private"):
		return KindPrivateAccount
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "not exist"),
		strings.Contains(msg, "couldn't find"),
		strings.Contains(msg, "isn't available"),
		strings.Contains(msg, "user not"):
		return KindUserNotFound
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "try again later"):
		return KindRateLimited
	case strings.Contains(msg, "log in"),
		strings.Contains(msg, "login"),
		strings.Contains(msg, "sign up"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "session"):
		return KindAuthRequired
	default:
		return KindUnknown
	}
}
