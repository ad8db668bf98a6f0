package source

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("unlimited limiter ignored a canceled context")
	}
}

func TestLimiter_FirstCallImmediate(t *testing.T) {
	l := NewLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
}

func TestLimiter_CancelWhileWaiting(t *testing.T) {
	l := NewLimiter(1)
	_ = l.Wait(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected deadline error while waiting for the next slot")
	}
}

func TestSpacer_ReservesSequentialSlots(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var mu sync.Mutex
	now := base
	s := &spacer{interval: 100 * time.Millisecond, now: func() time.Time { mu.Lock(); defer mu.Unlock(); return now }}

	for i, want := range []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond} {
		if got := s.reserve(); got != want {
			t.Fatalf("reserve %d delay=%v want %v", i, got, want)
		}
	}
	// After an idle second the schedule resets to now.
	mu.Lock()
	now = base.Add(time.Second)
	mu.Unlock()
	if got := s.reserve(); got != 0 {
		t.Fatalf("delay after idle=%v want 0", got)
	}
}

func TestLimiter_Spacing(t *testing.T) {
	l := NewLimiter(50) // 20ms apart
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("three calls took %v, want >= 40ms spacing", elapsed)
	}
}
