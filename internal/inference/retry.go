package inference

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DecodeError reports model output that could not be turned into function
// calls, natively or by salvage. It is terminal for the attempt but not for
// the request; the orchestrator escalates instead of retrying.
type DecodeError struct {
	Adapter string
	Raw     string
}

func (e *DecodeError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("%s: no function calls decodable from output: %q", e.Adapter, raw)
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsRetryable checks if an error is worth retrying (rate limit, server
// error, network). Decode failures and cancellations are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsDecodeError(err) {
		return false
	}
	msg := err.Error()

	// Rate limit (429)
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	// Anthropic overloaded (529)
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return true
	}
	// Server errors (500, 502, 503, 504)
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	// Network errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "temporary failure") {
		return true
	}
	return false
}

// Retryer runs an operation with bounded exponential backoff on transient
// failures.
type Retryer struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryer matches the production retry bounds.
func DefaultRetryer() Retryer {
	return Retryer{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Do invokes fn until it succeeds, fails terminally, or retries run out.
func (r Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= r.MaxRetries {
			return err
		}
		if serr := sleepWithContext(ctx, r.delay(attempt)); serr != nil {
			return err
		}
	}
}

// delay returns the backoff for attempt n (0-indexed) with ±30% jitter.
func (r Retryer) delay(attempt int) time.Duration {
	delay := r.BaseDelay
	for range attempt {
		delay *= 2
	}
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	jitter := time.Duration(rand.IntN(int(delay)*60/100)) - time.Duration(int(delay)*30/100)
	return delay + jitter
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
