package venice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError is a non-2xx response from the completions endpoint.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // zero when no Retry-After header was sent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("venice api status %d: %s", e.Status, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ParseRetryAfter reads a Retry-After header value, either delta
// seconds or an HTTP date. Returns zero when absent or unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
		return time.Duration(sec) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// RetryDo runs fn up to attempts times, backing off exponentially on
// temporary HTTP errors and honoring Retry-After when it is longer.
// Permanent errors return immediately.
func RetryDo(ctx context.Context, attempts int, fn func() error) error {
	var err error
	delay := retryBaseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.Temporary() {
			return err
		}
		if i == attempts-1 {
			break
		}
		wait := delay
		if httpErr.RetryAfter > wait {
			wait = httpErr.RetryAfter
		}
		if wait > retryMaxDelay {
			wait = retryMaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return err
}
