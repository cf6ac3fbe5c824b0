package sources

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error classification consumed by the orchestrator's retry policy.
// Unclassified errors are treated as transient and retried with backoff;
// adapters wrap what they can identify more precisely.

// PermanentError marks a failure retrying cannot fix: bad credentials,
// malformed config, a resource that does not exist. The orchestrator
// surfaces these immediately instead of burning retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RateLimitError carries the server-requested backoff. The orchestrator
// honors RetryAfter and does not count the wait against max_retries.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AsRateLimit extracts a RateLimitError from err's chain, if present.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// classifyHTTPStatus maps an HTTP response to the taxonomy: 429 honors the
// Retry-After header (defaulting to one second when absent or unparseable),
// other 4xx are permanent, and 5xx stay retryable as plain errors.
func classifyHTTPStatus(resp *http.Response, err error) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp), Err: err}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(err)
	default:
		return err
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
