package errors

import "time"

// Backoff is the shared retry specification used wherever the pipeline talks
// to the outside world. RetryOn decides from the error kind whether another
// attempt makes sense; Delay grows exponentially from Base and never exceeds
// Cap.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
	RetryOn     func(error) bool
}

// NewBackoff returns a policy retrying transient failures only.
func NewBackoff(base, cap time.Duration, maxAttempts int) Backoff {
	return Backoff{Base: base, Cap: cap, MaxAttempts: maxAttempts, RetryOn: Retryable}
}

// Delay returns the wait before the given attempt (1-based). Attempt 1 has
// no preceding wait and returns zero.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := b.Base
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (1-based) failed with err.
func (b Backoff) ShouldRetry(attempt int, err error) bool {
	if attempt >= b.MaxAttempts {
		return false
	}
	if b.RetryOn == nil {
		return Retryable(err)
	}
	return b.RetryOn(err)
}
