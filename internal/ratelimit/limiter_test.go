package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestNewRateLimiterStartsFull verifies the bucket starts at full capacity.
func TestNewRateLimiterStartsFull(t *testing.T) {
	rl := NewRateLimiter(1.0, 10.0)
	if tokens := rl.GetCurrentTokens(); tokens < 9.9 {
		t.Errorf("expected ~10 tokens, got %.2f", tokens)
	}
}

// TestTryAcquireConsumesToken verifies token consumption.
func TestTryAcquireConsumesToken(t *testing.T) {
	rl := NewRateLimiter(1.0, 5.0)

	for i := 0; i < 5; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("tryAcquire() failed on attempt %d", i+1)
		}
	}

	if rl.tryAcquire() {
		t.Error("tryAcquire() should fail when bucket is empty")
	}
}

// TestStatusReadLimiterDefaults verifies the fallback rate and burst sizing.
func TestStatusReadLimiterDefaults(t *testing.T) {
	rl := NewStatusReadLimiter(0)
	if tokens := rl.GetCurrentTokens(); tokens < 19.9 {
		t.Errorf("expected default burst of 20, got %.2f", tokens)
	}

	fast := NewStatusReadLimiter(50)
	if tokens := fast.GetCurrentTokens(); tokens < 49.9 {
		t.Errorf("burst should grow with the rate, got %.2f", tokens)
	}
}

// TestWaitBlocksUntilTokenAvailable verifies Wait blocks and then succeeds.
func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	rl := NewRateLimiter(10.0, 1.0)
	rl.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Errorf("Wait() took %v, expected ~100ms", elapsed)
	}
}

// TestWaitRespectsContextCancellation verifies Wait returns on context cancel.
func TestWaitRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(0.1, 1.0)
	rl.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

// TestSetCooldown verifies cooldown blocks Wait even with a full bucket.
func TestSetCooldown(t *testing.T) {
	rl := NewRateLimiter(100.0, 100.0)
	rl.SetCooldown(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() during cooldown returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("Wait() during cooldown took %v, expected ~200ms", elapsed)
	}
}

// TestCooldownMergeDoesNotShorten verifies a shorter cooldown is ignored.
func TestCooldownMergeDoesNotShorten(t *testing.T) {
	rl := NewRateLimiter(100.0, 100.0)

	rl.SetCooldown(500 * time.Millisecond)
	rl.SetCooldown(100 * time.Millisecond)

	if remaining := rl.CooldownRemaining(); remaining < 350*time.Millisecond {
		t.Errorf("cooldown shortened to %v", remaining)
	}
}

// TestCooldownExpires verifies cooldown eventually reaches zero.
func TestCooldownExpires(t *testing.T) {
	rl := NewRateLimiter(1.0, 1.0)
	if d := rl.CooldownRemaining(); d != 0 {
		t.Errorf("CooldownRemaining() = %v, want 0", d)
	}

	rl.SetCooldown(50 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if d := rl.CooldownRemaining(); d != 0 {
		t.Errorf("CooldownRemaining() = %v, want 0", d)
	}
}

// TestConcurrentAccess verifies thread safety under contention.
func TestConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100.0, 50.0)

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := rl.Wait(ctx); err != nil {
					return
				}
			}
		}()
	}

	wg.Wait()
}
