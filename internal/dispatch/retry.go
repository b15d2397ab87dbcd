package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nextlevelbuilder/hookrelay/internal/config"
)

// defaultRateLimitPause applies when a rate-limit signal carries no
// usable retry-after value.
const defaultRateLimitPause = time.Second

// RetryConfig bounds transient-failure retries for one message.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff
	MaxDelay    time.Duration // backoff cap
	Jitter      float64       // randomization factor in [0, 1]
}

// DefaultRetryConfig returns 5 attempts, 1s→30s exponential backoff with
// 50% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
	}
}

// RetryConfigFromConfig builds the retry policy from the dispatch section.
func RetryConfigFromConfig(cfg config.DispatchConfig) RetryConfig {
	r := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		r.MaxAttempts = cfg.MaxAttempts
	}
	r.BaseDelay = cfg.BaseDelay()
	r.MaxDelay = cfg.MaxDelay()
	return r
}

func (r RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = d.BaseDelay
	}
	if r.MaxDelay < r.BaseDelay {
		r.MaxDelay = r.BaseDelay
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		r.Jitter = d.Jitter
	}
	return r
}

// newBackOff returns a fresh exponential schedule for one message.
func (r RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	b.MaxInterval = r.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = r.Jitter
	b.Reset()
	return b
}
