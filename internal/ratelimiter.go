package internal

import (
	"sync"
	"time"
)

// RateLimiter admits at most limit hits per key inside a sliding window.
// Keys are client IPs, so the map is also pruned wholesale now and then
// to stop one-off visitors from accumulating forever.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastPrune) > r.window {
		r.pruneLocked(now)
		r.lastPrune = now
	}

	windowStart := now.Add(-r.window)
	slice := r.hits[key]
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	slice = slice[:idx]
	if len(slice) >= r.limit {
		r.hits[key] = slice
		return false
	}
	slice = append(slice, now)
	r.hits[key] = slice
	return true
}

// pruneLocked evicts keys whose every hit has aged out of the window.
func (r *RateLimiter) pruneLocked(now time.Time) {
	windowStart := now.Add(-r.window)
	for key, slice := range r.hits {
		live := false
		for _, ts := range slice {
			if ts.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(r.hits, key)
		}
	}
}
