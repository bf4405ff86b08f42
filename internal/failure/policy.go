package failure

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy is a bounded retry supervisor. Only transient errors are retried;
// quota and format errors stop the loop on the first occurrence.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration

	// RetryTimeouts allows KindTimeout to be retried. Off for operations where
	// a timeout already drives a fallback.
	RetryTimeouts bool

	// RetryIf replaces the kind-based classifier when set. Quota errors are
	// still never retried.
	RetryIf func(error) bool

	Logger *slog.Logger
}

// NoRetry runs the operation once; retries are left to the user.
var NoRetry = Policy{Attempts: 1}

// DefaultPagePolicy retries a failed page render once after a short pause.
// Renderer failures are untagged, so anything but cancellation and
// unsupported content is worth a second attempt.
var DefaultPagePolicy = Policy{
	Attempts: 2,
	Delay:    250 * time.Millisecond,
	MaxDelay: time.Second,
	RetryIf:  retryPage,
}

func retryPage(err error) bool {
	switch KindOf(err) {
	case KindCancelled, KindUnsupportedFormat, KindEmptyExtraction:
		return false
	}
	return true
}

// Retryable reports whether the policy would retry err.
func (p Policy) Retryable(err error) bool {
	if IsQuota(err) {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	switch KindOf(err) {
	case KindNetwork:
		return true
	case KindTimeout:
		return p.RetryTimeouts
	default:
		return false
	}
}

// Do runs fn under the policy and returns the last error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	delay := p.Delay
	if delay == 0 {
		delay = 100 * time.Millisecond
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(p.Retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying", "op", op, "attempt", n+1, "error", err)
		}),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}

	return retry.Do(func() error { return fn(ctx) }, opts...)
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
