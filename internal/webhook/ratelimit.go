package webhook

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs.
	maxTrackedKeys = 4096

	// rateLimitWindow is the fixed window duration for rate counting.
	rateLimitWindow = 60 * time.Second
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// RateLimiter bounds requests per source address per minute and the
// number of addresses it tracks. Safe for concurrent use. A nil
// *RateLimiter allows everything.
type RateLimiter struct {
	maxHits int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewRateLimiter returns a limiter allowing perMinute requests per key,
// or nil when perMinute <= 0 (disabled).
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		maxHits: perMinute,
		now:     time.Now,
		entries: make(map[string]*rateLimitEntry),
	}
}

// Allow returns true if the key is within its rate limit.
// Automatically prunes stale entries and enforces a hard cap on tracked keys.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Prune stale entries when approaching the cap
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap
		for k := range r.entries {
			if len(r.entries) < maxTrackedKeys {
				break
			}
			delete(r.entries, k)
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateLimitWindow {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}

// tracked reports how many keys are held.
func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
