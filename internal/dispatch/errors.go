package dispatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermanent marks a delivery error that retrying cannot fix
	// (unknown channel, missing permission, malformed request).
	ErrPermanent = errors.New("dispatch: permanent delivery failure")

	// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
	ErrQueueClosed = errors.New("dispatch: queue closed")

	// ErrDiscarded is the result of a message that was shed from a full
	// queue or still pending when the shutdown grace period ran out.
	ErrDiscarded = errors.New("dispatch: message discarded")
)

// RateLimitError signals that the destination asked us to back off. The
// worker pauses its channel for RetryAfter and retries the same message
// without spending the retry budget.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker drops the message without retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
