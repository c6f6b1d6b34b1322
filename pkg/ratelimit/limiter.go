package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a continuously refilling token bucket
type TokenBucket struct {
	capacity   float64 // Maximum number of tokens
	tokens     float64 // Current number of tokens
	ratePerSec float64 // Tokens added per second
	lastRefill time.Time
	clock      Clock
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket holding up to capacity tokens that refills
// at ratePerSec. It starts full.
func NewTokenBucket(capacity int, ratePerSec float64, clock Clock) *TokenBucket {
	if clock == nil {
		clock = RealClock()
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		ratePerSec: ratePerSec,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.take(tb.clock.Now()) == 0
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		wait := tb.take(tb.clock.Now())
		tb.mu.Unlock()

		if wait == 0 {
			return nil
		}
		if err := tb.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock.Now()
}

// take consumes a token and returns 0, or returns how long until one is available.
func (tb *TokenBucket) take(now time.Time) time.Duration {
	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.ratePerSec
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}

	missing := 1 - tb.tokens
	wait := time.Duration(missing / tb.ratePerSec * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// SlidingWindow admits at most maxRequests in any window of windowSize.
// A recorded request stops counting exactly windowSize after it was made.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	clock       Clock
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration, clock Clock) *SlidingWindow {
	if clock == nil {
		clock = RealClock()
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		clock:       clock,
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	if sw.waitLocked(now) > 0 {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait blocks until a request is allowed
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := sw.clock.Now()
		wait := sw.waitLocked(now)
		if wait == 0 {
			sw.requests = append(sw.requests, now)
			sw.mu.Unlock()
			return nil
		}
		sw.mu.Unlock()

		if err := sw.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// Count returns the number of requests inside the window ending now
func (sw *SlidingWindow) Count() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.cleanOldRequests(sw.clock.Now())
	return len(sw.requests)
}

// waitLocked returns how long until a request fits; 0 means it fits now.
func (sw *SlidingWindow) waitLocked(now time.Time) time.Duration {
	sw.cleanOldRequests(now)
	if len(sw.requests) < sw.maxRequests {
		return 0
	}
	// The request that must expire before another fits.
	blocking := sw.requests[len(sw.requests)-sw.maxRequests]
	wait := blocking.Add(sw.windowSize).Sub(now)
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return wait
}

// peek reports the wait a request at now would face without recording it.
func (sw *SlidingWindow) peek(now time.Time) time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.waitLocked(now)
}

func (sw *SlidingWindow) record(now time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = append(sw.requests, now)
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}
