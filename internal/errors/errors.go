// Package errors defines the error taxonomy shared by every provider and
// the retry/breaker layers. Classification drives retry decisions, so all
// outbound failures must be reported through one of the kinds below.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind classifies a failure for retry and reporting purposes.
type Kind int

const (
	KindOther Kind = iota
	KindNotImplemented
	KindNetwork
	KindParse
	KindInvalidRequest
	KindRateLimit
	KindNotFound
	KindAPI
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotImplemented:
		return "not implemented"
	case KindNetwork:
		return "network error"
	case KindParse:
		return "parse error"
	case KindInvalidRequest:
		return "invalid request"
	case KindRateLimit:
		return "rate limited"
	case KindNotFound:
		return "not found"
	case KindAPI:
		return "api error"
	case KindIO:
		return "io error"
	default:
		return "error"
	}
}

// Error carries the kind plus whatever attribution was known at the
// failure site. Provider and Op may be empty for local failures.
type Error struct {
	Kind       Kind
	Provider   string
	Op         string
	Msg        string
	Status     int           // HTTP status when one was received
	RetryAfter time.Duration // server-recommended wait, zero if none
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ---------- Constructors ----------

func NotImplemented(provider, op string) error {
	return &Error{Kind: KindNotImplemented, Provider: provider, Op: op,
		Msg: fmt.Sprintf("operation %q is not supported", op)}
}

func Network(provider string, err error) error {
	return &Error{Kind: KindNetwork, Provider: provider, Err: err}
}

func Parse(provider, msg string, err error) error {
	return &Error{Kind: KindParse, Provider: provider, Msg: msg, Err: err}
}

func InvalidRequest(msg string) error {
	return &Error{Kind: KindInvalidRequest, Msg: msg}
}

func InvalidRequestf(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Msg: fmt.Sprintf(format, args...)}
}

func RateLimited(provider string, retryAfter time.Duration) error {
	msg := "rate limited"
	if retryAfter > 0 {
		msg = fmt.Sprintf("rate limited (retry after %s)", retryAfter)
	}
	return &Error{Kind: KindRateLimit, Provider: provider, Status: 429,
		Msg: msg, RetryAfter: retryAfter}
}

func NotFound(provider, msg string) error {
	if msg == "" {
		msg = "not found"
	}
	return &Error{Kind: KindNotFound, Provider: provider, Msg: msg, Status: 404}
}

func API(provider string, status int, msg string) error {
	return &Error{Kind: KindAPI, Provider: provider, Status: status, Msg: msg}
}

func IO(msg string, err error) error {
	return &Error{Kind: KindIO, Msg: msg, Err: err}
}

func Otherf(format string, args ...any) error {
	return &Error{Kind: KindOther, Msg: fmt.Sprintf(format, args...)}
}

// ---------- Classification ----------

// KindOf reports the taxonomy kind of err, walking the wrap chain.
// Untyped errors are KindOther.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsNotImplemented(err error) bool { return KindOf(err) == KindNotImplemented }
func IsRateLimit(err error) bool      { return KindOf(err) == KindRateLimit }
func IsInvalidRequest(err error) bool { return KindOf(err) == KindInvalidRequest }

// IsTransient reports whether retrying the same request could plausibly
// succeed. Rate limits, network failures, timeouts and 5xx responses are
// transient; everything else is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if stderrors.As(err, &e) {
		switch e.Kind {
		case KindNetwork, KindRateLimit:
			return true
		case KindAPI:
			return e.Status >= 500
		default:
			return false
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if stderrors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return false
}

// RetryDelay returns the minimum wait a caller should observe before the
// next attempt, or zero when only the exponential schedule applies.
func RetryDelay(err error) time.Duration {
	var e *Error
	if !stderrors.As(err, &e) {
		if IsTransient(err) {
			return 2 * time.Second
		}
		return 0
	}
	switch e.Kind {
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return e.RetryAfter + time.Second
		}
		return 61 * time.Second
	case KindNetwork:
		return 2 * time.Second
	case KindAPI:
		switch e.Status {
		case 503:
			return 10 * time.Second
		case 504:
			return 5 * time.Second
		}
	}
	return 0
}
