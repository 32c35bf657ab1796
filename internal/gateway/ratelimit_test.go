package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()
	if rl.Enabled() {
		t.Fatal("limiter should be disabled")
	}
	for i := 0; i < 100; i++ {
		if !rl.Allow("d1") {
			t.Fatalf("call %d rejected while disabled", i)
		}
	}
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("d1") {
			t.Fatalf("call %d within burst rejected", i)
		}
	}
	if rl.Allow("d1") {
		t.Fatal("call beyond burst allowed")
	}
	if !rl.Allow("d2") {
		t.Fatal("buckets must be per device")
	}
}

func TestRateLimiter_ForgetResetsBucket(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	rl.Allow("d1")
	if rl.Allow("d1") {
		t.Fatal("second call should be limited")
	}
	rl.Forget("d1")
	if !rl.Allow("d1") {
		t.Fatal("forgotten device should start with a fresh bucket")
	}
}

func TestRateLimiter_Update(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	rl.Allow("d1")
	rl.Update(0, 1)
	if !rl.Allow("d1") {
		t.Fatal("disabling should allow immediately")
	}

	rl.Update(60, 2)
	if !rl.Enabled() {
		t.Fatal("limiter should be enabled again")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("d1")
	rl.cleanup(time.Now().Add(time.Minute))
	if _, ok := rl.limiters.Load("d1"); ok {
		t.Fatal("stale entry survived cleanup")
	}
}
