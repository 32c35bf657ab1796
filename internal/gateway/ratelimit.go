package gateway

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-device command rate using token buckets.
// Limits can be changed at runtime; existing buckets pick them up lazily.
type RateLimiter struct {
	limiters sync.Map // device id → *limiterEntry

	mu    sync.RWMutex
	r     rate.Limit
	burst int

	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. cpm is commands per minute; cpm <= 0
// disables limiting.
func NewRateLimiter(cpm, burst int) *RateLimiter {
	rl := &RateLimiter{stop: make(chan struct{})}
	rl.Update(cpm, burst)
	go rl.cleanupLoop()
	return rl
}

// Update replaces the rate and burst.
func (rl *RateLimiter) Update(cpm, burst int) {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if cpm > 0 {
		r = rate.Limit(float64(cpm) / 60.0)
	}

	rl.mu.Lock()
	rl.r, rl.burst = r, burst
	rl.mu.Unlock()
}

// Allow reports whether deviceID may send another command now.
func (rl *RateLimiter) Allow(deviceID string) bool {
	rl.mu.RLock()
	r, burst := rl.r, rl.burst
	rl.mu.RUnlock()
	if r == 0 {
		return true
	}

	entry := rl.getOrCreate(deviceID, r, burst)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.limiter.Limit() != r || entry.limiter.Burst() != burst {
		entry.limiter.SetLimit(r)
		entry.limiter.SetBurst(burst)
	}
	entry.lastSeen = time.Now()
	if !entry.limiter.Allow() {
		slog.Warn("security.rate_limited", "device", deviceID)
		return false
	}
	return true
}

// Enabled returns true if the rate limiter is active.
func (rl *RateLimiter) Enabled() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.r > 0
}

// Forget drops the bucket for a device that went offline.
func (rl *RateLimiter) Forget(deviceID string) {
	rl.limiters.Delete(deviceID)
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getOrCreate(key string, r rate.Limit, burst int) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(r, burst),
		lastSeen: time.Now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-10 * time.Minute))
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
		}
		return true
	})
}
