package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusError is returned by HTTP clients for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsRetryable reports whether err is worth another attempt: retryable HTTP
// statuses, network timeouts and dropped connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableHTTPStatus(statusErr.Status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: time.Second, Cap: 30 * time.Second}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. The last error is returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, p.Base, p.Cap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
