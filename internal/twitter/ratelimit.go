package twitter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError is returned when the API answers 429. ResetAt comes
// from the x-rate-limit-reset header (epoch seconds); when the header
// is absent ResetAt is zero and the caller falls back to its own
// backoff.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited (no reset header)"
	}
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// Wait returns how long to sleep before retrying, including a small
// buffer past the advertised reset. Zero when the window has already
// passed or no reset time is known.
func (e *RateLimitError) Wait(now time.Time) time.Duration {
	if e.ResetAt.IsZero() {
		return 0
	}
	d := e.ResetAt.Add(5 * time.Second).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// newRateLimitError parses the throttle headers off a 429 response.
func newRateLimitError(h http.Header) *RateLimitError {
	e := &RateLimitError{Remaining: -1}
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.ResetAt = time.Unix(sec, 0)
		}
	}
	if v := h.Get("x-rate-limit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			e.Remaining = n
		}
	}
	return e
}

// AsRateLimit unwraps err to a RateLimitError if one is in the chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// APIError is any non-2xx, non-429 response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter api status %d: %s", e.Status, e.Body)
}
