// Package failure defines the tagged error taxonomy shared by rendering,
// extraction, OCR and translation, plus a transient-vs-fatal classifier.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind tags an error with the remedial action the caller should offer.
type Kind string

const (
	KindNetwork           Kind = "network"
	KindTimeout           Kind = "timeout"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindEmptyExtraction   Kind = "empty_extraction"
	KindRateLimit         Kind = "rate_limit"
	KindCreditExhausted   Kind = "credit_exhausted"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal"
)

// Error is a tagged error. Message is what a user should see; for quota
// errors it is the backend's message verbatim.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrRateLimit) works
// through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrEmptyExtraction   = &Error{Kind: KindEmptyExtraction}
	ErrRateLimit         = &Error{Kind: KindRateLimit}
	ErrCreditExhausted   = &Error{Kind: KindCreditExhausted}
	ErrCancelled         = &Error{Kind: KindCancelled}
)

// New creates a tagged error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap tags err with kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Network reports a transient transport failure.
func Network(op string, err error) error {
	return Wrap(KindNetwork, op, err)
}

// Timeout reports an operation that exceeded its budget.
func Timeout(op string, err error) error {
	return Wrap(KindTimeout, op, err)
}

// Unsupported reports a document that cannot be previewed.
func Unsupported(op, mimeType string) error {
	return New(KindUnsupportedFormat, op, fmt.Sprintf("no preview available for %q", mimeType))
}

// EmptyExtraction reports that no text could be obtained for a page.
func EmptyExtraction(op string, page int) error {
	return New(KindEmptyExtraction, op, fmt.Sprintf("no text available on page %d", page))
}

// RateLimited reports a 429 from a backend.
func RateLimited(op, message string, retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimit, Op: op, Message: message, StatusCode: http.StatusTooManyRequests, RetryAfter: retryAfter}
}

// CreditExhausted reports a 402 from a backend.
func CreditExhausted(op, message string) error {
	return &Error{Kind: KindCreditExhausted, Op: op, Message: message, StatusCode: http.StatusPaymentRequired}
}

// FromStatus maps a non-2xx backend status to a tagged error.
func FromStatus(op string, status int, message string, retryAfter time.Duration) error {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited(op, message, retryAfter)
	case status == http.StatusPaymentRequired:
		return CreditExhausted(op, message)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Op: op, Message: message, StatusCode: status}
	case status == http.StatusUnsupportedMediaType:
		return &Error{Kind: KindUnsupportedFormat, Op: op, Message: message, StatusCode: status}
	case status >= 500:
		return &Error{Kind: KindNetwork, Op: op, Message: message, StatusCode: status}
	default:
		return &Error{Kind: KindInternal, Op: op, Message: message, StatusCode: status}
	}
}

// KindOf classifies any error. Untagged context and net errors are
// recognised; everything else is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether a retry could succeed. Quota errors never are.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// IsQuota reports a rate limit or exhausted credit.
func IsQuota(err error) bool {
	k := KindOf(err)
	return k == KindRateLimit || k == KindCreditExhausted
}

// UserMessage returns the text to surface for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
