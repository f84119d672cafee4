package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies a failed inference call. The set is closed: every error
// returned by Client maps to exactly one Kind.
type Kind int

const (
	// KindUnknownServer is any non-2xx status other than 429 and 503, and the
	// fallback for errors that cannot be classified structurally.
	KindUnknownServer Kind = iota
	// KindValidation means the prompt was rejected before any network I/O.
	KindValidation
	// KindRateLimited maps HTTP 429.
	KindRateLimited
	// KindServiceUnavailable maps HTTP 503 (backend busy or loading a model).
	KindServiceUnavailable
	// KindTimeout means the connect or read timeout elapsed.
	KindTimeout
	// KindConnection means the socket could not be established or was reset.
	KindConnection
	// KindCancelled means the caller cancelled the call.
	KindCancelled
	// KindEmptyResponse means the backend answered with blank text.
	KindEmptyResponse
)

var kindNames = [...]string{
	KindUnknownServer:      "unknown_server",
	KindValidation:         "validation",
	KindRateLimited:        "rate_limited",
	KindServiceUnavailable: "service_unavailable",
	KindTimeout:            "timeout",
	KindConnection:         "connection",
	KindCancelled:          "cancelled",
	KindEmptyResponse:      "empty_response",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the error type returned by Client.
type Error struct {
	Kind Kind
	// StatusCode is the HTTP status for server-side kinds, zero otherwise.
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("inference: %s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("inference: %s: %v", e.Kind, e.Err)
	case e.Msg != "":
		return "inference: " + e.Msg
	default:
		return "inference: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can write errors.Is(err, ErrTimeout).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.StatusCode == 0 && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrConnection         = &Error{Kind: KindConnection}
	ErrCancelled          = &Error{Kind: KindCancelled}
	ErrEmptyResponse      = &Error{Kind: KindEmptyResponse}
	ErrUnknownServer      = &Error{Kind: KindUnknownServer}
)

// KindOf classifies err. *Error values report their own kind; other errors
// are classified by their structure (context errors, net.Error timeouts,
// dial/socket failures).
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknownServer
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return KindConnection
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindConnection
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return KindConnection
	}
	return KindUnknownServer
}

// IsRetryable reports whether a failure of this kind is worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindServiceUnavailable, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}

func newError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}
