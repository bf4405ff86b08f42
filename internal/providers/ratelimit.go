package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket measured in requests per second. A 429 from
// the backend blocks all callers until its Retry-After has elapsed.
type RateLimiter struct {
	mu sync.Mutex

	rps   float64
	burst float64

	tokens       float64
	lastUpdate   time.Time
	blockedUntil time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	RPS             float64       `json:"rps"`
	BlockedFor      time.Duration `json:"blocked_for,omitempty"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of one second's worth of tokens.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 5.0
	}
	burst := rps
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:        rps,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.refill(now)

		var wait time.Duration
		switch {
		case now.Before(r.blockedUntil):
			wait = r.blockedUntil.Sub(now)
		case r.tokens >= 1.0:
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		default:
			wait = time.Duration((1.0 - r.tokens) / r.rps * float64(time.Second))
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)
	if now.Before(r.blockedUntil) || r.tokens < 1.0 {
		return false
	}
	r.tokens--
	r.totalConsumed++
	return true
}

// Record429 drains the bucket and, when retryAfter is set, blocks callers
// until it has passed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	r.tokens = 0
	if retryAfter > 0 {
		if until := now.Add(retryAfter); until.After(r.blockedUntil) {
			r.blockedUntil = until
		}
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)

	var blocked time.Duration
	if now.Before(r.blockedUntil) {
		blocked = r.blockedUntil.Sub(now)
	}
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		RPS:             r.rps,
		BlockedFor:      blocked,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

// refill must be called with the lock held.
func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now
	r.tokens += elapsed * r.rps
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
}
