package channel

import (
	"math"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. Each client may burst up to max
// requests and regains max tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     float64
	rate    float64 // tokens per second
	window  time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		max:     float64(max),
		rate:    float64(max) / window.Seconds(),
		window:  window,
		now:     time.Now,
	}
}

// Window returns the refill window.
func (rl *RateLimiter) Window() time.Duration { return rl.window }

// Limit returns the burst size.
func (rl *RateLimiter) Limit() int { return int(rl.max) }

// Allow consumes one token for key. When the bucket is empty it reports how
// long until the next token is available.
func (rl *RateLimiter) Allow(key string) (ok bool, remaining int, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, found := rl.buckets[key]
	if !found {
		b = &bucket{tokens: rl.max, last: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(rl.max, b.tokens+now.Sub(b.last).Seconds()*rl.rate)
	b.last = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, int(b.tokens), 0
	}
	wait := time.Duration((1.0 - b.tokens) / rl.rate * float64(time.Second))
	return false, 0, wait
}

// Sweep drops buckets that would be full by now. It returns how many were
// removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*rl.rate >= rl.max {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}
