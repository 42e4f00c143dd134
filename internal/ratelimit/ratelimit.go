package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limiter is a token-bucket admission controller keyed by caller identity.
// Each key gets a bucket of Capacity tokens refilled at RefillRate
// tokens/second; a request consumes one token. Check-and-decrement is
// atomic under the mutex, so concurrent requests on the same key never
// over-admit.
type Limiter struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	buckets    map[string]*bucket

	cleanupEvery time.Duration
	lastCleanup  time.Time

	// now is swappable in tests
	now func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New creates a Limiter with the given bucket capacity and refill rate in
// tokens per second.
func New(capacity int, refillRate float64) *Limiter {
	return &Limiter{
		capacity:     float64(capacity),
		refillRate:   refillRate,
		buckets:      make(map[string]*bucket),
		cleanupEvery: 5 * time.Minute,
		lastCleanup:  time.Now(),
		now:          time.Now,
	}
}

// Allow reports whether a request for key is admitted. When denied,
// retryAfter is the time until one token becomes available, computed from
// the bucket's deficit divided by the refill rate.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.cleanupEvery {
		l.cleanup(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastSeen: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastSeen).Seconds()
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.refillRate)
		b.lastSeen = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	deficit := 1 - b.tokens
	return false, time.Duration(math.Ceil(deficit/l.refillRate)) * time.Second
}

// cleanup evicts buckets idle long enough to have refilled completely;
// re-created buckets start full, so dropping them loses nothing.
func (l *Limiter) cleanup(now time.Time) {
	idle := time.Duration(l.capacity/l.refillRate) * time.Second * 2
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
	l.lastCleanup = now
}
