package collector

import (
	"context"
	"testing"
	"time"
)

func TestThrottle_SpacesRequests(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	// first token is immediate, the next two wait one interval each
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected at least ~100ms, got %s", elapsed)
	}
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		th.Wait(ctx)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled throttle should not wait, took %s", elapsed)
	}

	var nilThrottle *Throttle
	if err := nilThrottle.Wait(ctx); err != nil {
		t.Errorf("nil throttle: %v", err)
	}
}

func TestThrottle_Cancelled(t *testing.T) {
	th := NewThrottle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	th.Wait(ctx) // consume the burst
	cancel()

	if err := th.Wait(ctx); err == nil {
		t.Error("expected error on cancelled context")
	}
}
