// Package ratelimit throttles inbound validation requests per client.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the number of whole seconds until the window frees a slot.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// SlidingWindow counts admissions per key over a trailing window. It is
// in-process only; replicas each keep their own counts.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   func() time.Time
	buckets map[string][]time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		clock:   time.Now,
		buckets: make(map[string][]time.Time),
	}
}

// AllowN admits cost requests for key if the window has room for all of them.
// A cost below one consumes nothing and only reports the current state.
func (s *SlidingWindow) AllowN(key string, cost int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	stamps := trim(s.buckets[key], now.Add(-s.window))
	cost = max(cost, 0)

	if len(stamps)+cost > s.limit {
		s.buckets[key] = stamps
		return Result{Allowed: false, Limit: s.limit, ResetAt: s.resetAt(stamps, now)}
	}

	for range cost {
		stamps = append(stamps, now)
	}
	if len(stamps) > 0 {
		s.buckets[key] = stamps
	}
	return Result{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - len(stamps),
		ResetAt:   s.resetAt(stamps, now),
	}
}

// resetAt is when the oldest admission leaves the window.
func (s *SlidingWindow) resetAt(stamps []time.Time, now time.Time) time.Time {
	if len(stamps) == 0 {
		return now.Add(s.window)
	}
	return stamps[0].Add(s.window)
}

func (s *SlidingWindow) Allow(key string) Result {
	return s.AllowN(key, 1)
}

// Sweep drops keys with no admissions inside the window.
func (s *SlidingWindow) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock().Add(-s.window)
	for key, stamps := range s.buckets {
		if stamps = trim(stamps, cutoff); len(stamps) == 0 {
			delete(s.buckets, key)
		} else {
			s.buckets[key] = stamps
		}
	}
}

// trim drops timestamps at or before cutoff; stamps are in ascending order.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
