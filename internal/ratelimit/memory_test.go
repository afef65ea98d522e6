package ratelimit

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/ctxutil"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func userKey(id uuid.UUID) string { return "user:" + id.String() }

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := NewMemoryLimiter(10, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	key := userKey(uuid.New())

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow error on turn %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("turn %d should be inside the burst", i)
		}
	}

	ok, err := m.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatal("turn past the burst should be denied")
	}
}

func TestMemoryLimiterRefill(t *testing.T) {
	// 1000 tokens/s: one token per millisecond, so a short sleep after
	// exhausting the burst is enough to earn one back.
	m := NewMemoryLimiter(1000, 2)
	defer closeLimiter(t, m)

	ctx := context.Background()
	key := userKey(uuid.New())
	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, key)
	}
	if ok, _ := m.Allow(ctx, key); ok {
		t.Fatal("should be denied right after the burst is spent")
	}

	time.Sleep(5 * time.Millisecond)

	ok, err := m.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if !ok {
		t.Fatal("expected a token back after the refill interval")
	}
}

func TestMemoryLimiterUserAndIPKeysIndependent(t *testing.T) {
	// The chat limiter keys on the user, the auth limiter on the IP.
	// Exhausting one user's chat budget must not touch anyone else's,
	// nor the IP bucket for the same client.
	m := NewMemoryLimiter(10, 1)
	defer closeLimiter(t, m)

	ctx := context.Background()
	userID := uuid.New()

	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.RemoteAddr = "10.0.0.7:4321"
	req = req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{UserID: userID}))

	chatKey := UserKeyFunc(req)
	if chatKey != userKey(userID) {
		t.Fatalf("UserKeyFunc = %q, want %q", chatKey, userKey(userID))
	}

	if ok, _ := m.Allow(ctx, chatKey); !ok {
		t.Fatal("first chat turn should pass")
	}
	if ok, _ := m.Allow(ctx, chatKey); ok {
		t.Fatal("second chat turn should be rate limited")
	}

	// Same client hitting an IP-keyed endpoint still has its own bucket.
	if ok, _ := m.Allow(ctx, "ip:"+IPKeyFunc(req)); !ok {
		t.Fatal("IP bucket must be independent of the user bucket")
	}

	// And a different user is unaffected.
	if ok, _ := m.Allow(ctx, userKey(uuid.New())); !ok {
		t.Fatal("another user's bucket must be independent")
	}
}

func TestMemoryLimiterConcurrentSameUser(t *testing.T) {
	m := NewMemoryLimiter(100, 50)
	defer closeLimiter(t, m)

	ctx := context.Background()
	key := userKey(uuid.New())

	var wg sync.WaitGroup
	allowed := make([]int, 10)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, key)
				if err != nil {
					t.Errorf("goroutine %d: Allow error: %v", idx, err)
					return
				}
				if ok {
					allowed[idx]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, n := range allowed {
		total += n
	}
	// 100 concurrent turns against a burst of 50.
	if total < 1 || total > 50 {
		t.Fatalf("allowed %d turns, want between 1 and 50", total)
	}
}

func TestMemoryLimiterSweepDropsIdleKeys(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer closeLimiter(t, m)

	ctx := context.Background()
	idle := userKey(uuid.New())
	active := userKey(uuid.New())
	_, _ = m.Allow(ctx, idle)
	_, _ = m.Allow(ctx, active)

	m.mu.Lock()
	m.entries[idle].seen = time.Now().Add(-idleTTL - 5*time.Minute)
	m.mu.Unlock()

	m.sweep()

	m.mu.Lock()
	_, idleLeft := m.entries[idle]
	_, activeLeft := m.entries[active]
	m.mu.Unlock()

	if idleLeft {
		t.Fatal("idle key should have been swept")
	}
	if !activeLeft {
		t.Fatal("recently seen key should survive the sweep")
	}
}

func TestMemoryLimiterIdleRefillCapsAtBurst(t *testing.T) {
	m := NewMemoryLimiter(1000, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	key := userKey(uuid.New())
	_, _ = m.Allow(ctx, key)

	// An hour idle would earn millions of tokens if uncapped.
	m.mu.Lock()
	m.entries[key].seen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, key); !ok {
			t.Fatalf("turn %d after idle should pass", i)
		}
	}
	if ok, _ := m.Allow(ctx, key); ok {
		t.Fatal("bucket must cap at burst even after a long idle stretch")
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, fmt.Sprintf("user:%d", i))
		if err != nil {
			t.Fatalf("NoopLimiter.Allow error: %v", err)
		}
		if !ok {
			t.Fatal("NoopLimiter must always allow")
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLimiter.Close error: %v", err)
	}
}
