package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a deterministic token bucket refilling at an integer rate
// (tokens/sec) from a provided Clock.
//
// Accounting is done in nanosecond-granularity credit (1 token = 1e9 credit)
// so refill math stays in integers; a rate of R tokens/sec therefore adds R
// credit per elapsed nanosecond.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	credit int64 // nano-tokens currently available
	last   time.Time
}

const creditPerToken = int64(time.Second)

func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     rate,
		credit:   saturatingTokensToCredit(capacity),
		last:     clock.Now(),
	}
}

// Allow consumes tokens if available. A non-positive request always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := saturatingTokensToCredit(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.credit < cost {
		return false
	}
	b.credit -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Clock went backwards; re-anchor without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	max := saturatingTokensToCredit(b.capacity)
	missing := max - b.credit
	if missing <= 0 {
		b.credit = max
		return
	}

	// elapsed*rate can overflow for very long gaps; if the gap is long enough
	// to fill the bucket anyway, clamp instead of multiplying.
	if elapsed >= missing/b.rate+1 {
		b.credit = max
		return
	}
	b.credit += elapsed * b.rate
	if b.credit > max {
		b.credit = max
	}
}

func saturatingTokensToCredit(tokens int64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/creditPerToken {
		return maxInt64
	}
	return tokens * creditPerToken
}
