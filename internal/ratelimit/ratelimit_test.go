package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	base := time.Now()
	l := New(5, 1.0)
	l.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("user-1")
		if !allowed {
			t.Fatalf("request %d: expected allowed within burst capacity", i+1)
		}
	}

	allowed, retryAfter := l.Allow("user-1")
	if allowed {
		t.Fatal("6th request: expected denial with empty bucket")
	}
	if retryAfter != time.Second {
		t.Errorf("expected retry after 1s at 1 token/s, got %v", retryAfter)
	}
}

func TestLimiter_RefillRestoresTokens(t *testing.T) {
	now := time.Now()
	l := New(5, 1.0)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Allow("user-1")
	}
	if allowed, _ := l.Allow("user-1"); allowed {
		t.Fatal("expected denial with empty bucket")
	}

	// 2 seconds refills 2 tokens
	now = now.Add(2 * time.Second)
	if allowed, _ := l.Allow("user-1"); !allowed {
		t.Error("expected first request after refill to be allowed")
	}
	if allowed, _ := l.Allow("user-1"); !allowed {
		t.Error("expected second request after refill to be allowed")
	}
	if allowed, _ := l.Allow("user-1"); allowed {
		t.Error("expected third request after refill to be denied")
	}
}

func TestLimiter_CapacityCapsRefill(t *testing.T) {
	now := time.Now()
	l := New(5, 1.0)
	l.now = func() time.Time { return now }

	l.Allow("user-1")

	// A long idle period must not accumulate beyond capacity.
	now = now.Add(time.Hour)
	for i := 0; i < 5; i++ {
		if allowed, _ := l.Allow("user-1"); !allowed {
			t.Fatalf("request %d: expected allowed after long idle", i+1)
		}
	}
	if allowed, _ := l.Allow("user-1"); allowed {
		t.Error("expected denial past capacity despite long idle")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	base := time.Now()
	l := New(1, 1.0)
	l.now = func() time.Time { return base }

	if allowed, _ := l.Allow("user-1"); !allowed {
		t.Fatal("expected first key's request to be allowed")
	}
	if allowed, _ := l.Allow("user-1"); allowed {
		t.Fatal("expected first key to be exhausted")
	}
	if allowed, _ := l.Allow("user-2"); !allowed {
		t.Error("expected second key to have its own full bucket")
	}
}

func TestLimiter_RetryAfterScalesWithRate(t *testing.T) {
	base := time.Now()
	l := New(1, 0.5)
	l.now = func() time.Time { return base }

	l.Allow("user-1")
	allowed, retryAfter := l.Allow("user-1")
	if allowed {
		t.Fatal("expected denial")
	}
	// One token at 0.5 tokens/s takes 2 seconds.
	if retryAfter != 2*time.Second {
		t.Errorf("expected retry after 2s at 0.5 token/s, got %v", retryAfter)
	}
}

func TestLimiter_CleanupEvictsIdleBuckets(t *testing.T) {
	now := time.Now()
	l := New(2, 1.0)
	l.now = func() time.Time { return now }
	l.lastCleanup = now

	l.Allow("idle-user")

	// Well past both the cleanup interval and the idle horizon.
	now = now.Add(time.Hour)
	l.Allow("active-user")

	l.mu.Lock()
	_, exists := l.buckets["idle-user"]
	l.mu.Unlock()
	if exists {
		t.Error("expected idle bucket to be evicted")
	}
}
