package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry tracks the bucket state for one key (one user or one client IP).
type entry struct {
	tokens float64
	seen   time.Time
}

// MemoryLimiter is a per-key token bucket held in process memory.
//
// Each user or IP key gets its own bucket that refills at rate tokens
// per second up to a burst ceiling. A background sweeper drops keys that
// have gone quiet so the map does not grow with every client the service
// has ever seen.
type MemoryLimiter struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	done     chan struct{}
}

const (
	sweepInterval = time.Minute
	idleTTL       = 10 * time.Minute
)

// NewMemoryLimiter creates a token bucket limiter allowing rate requests
// per second per key, with bursts up to burst. Call Close to stop the
// background sweeper.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Allow consumes one token from the bucket for key. It returns false
// when the key has exhausted its burst and not enough time has passed
// to refill.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok {
		// Unseen key: full bucket, minus the token for this request.
		m.entries[key] = &entry{tokens: m.burst - 1, seen: now}
		return true, nil
	}

	e.tokens += now.Sub(e.seen).Seconds() * m.rate
	if e.tokens > m.burst {
		e.tokens = m.burst
	}
	e.seen = now

	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Close stops the sweeper. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops entries that have not been touched within idleTTL.
func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idleTTL)
	for key, e := range m.entries {
		if e.seen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}
