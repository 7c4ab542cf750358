package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.rate != 10 {
		t.Errorf("rate = %v, want 10", rl.rate)
	}
	if rl.burst != 20 {
		t.Errorf("burst = %v, want 20", rl.burst)
	}

	rl = NewRateLimiter(5, 2)
	if rl.burst != 5 {
		t.Errorf("burst = %v, want 5 (raised to rate)", rl.burst)
	}
}

func TestRateLimiter_AllowExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	frozen := time.Now()
	rl.now = func() time.Time { return frozen }
	rl.lastRefill = frozen

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() after burst = true, want false")
	}

	// Через секунду появляется ровно один токен
	frozen = frozen.Add(time.Second)
	if !rl.Allow() {
		t.Error("Allow() after refill = false, want true")
	}
	if rl.Allow() {
		t.Error("second Allow() after refill = true, want false")
	}
}

func TestRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait error = %v, want DeadlineExceeded", err)
	}
}

func TestKeyedLimiter_IndependentKeys(t *testing.T) {
	kl := NewKeyedLimiter(1, 1, time.Minute)

	if !kl.Allow("10.0.0.1") {
		t.Fatal("first request for key A rejected")
	}
	if kl.Allow("10.0.0.1") {
		t.Error("second request for key A allowed")
	}
	if !kl.Allow("10.0.0.2") {
		t.Error("first request for key B rejected")
	}
	if kl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", kl.Len())
	}
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	kl := NewKeyedLimiter(1, 1, time.Minute)
	kl.Allow("a")
	kl.Allow("b")

	kl.mu.Lock()
	kl.limiters["a"].lastUsed = time.Now().Add(-2 * time.Minute)
	kl.mu.Unlock()

	if removed := kl.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if kl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", kl.Len())
	}
}
