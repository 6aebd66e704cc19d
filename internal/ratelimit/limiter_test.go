package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAwaitSlotFirstCallNeverWaits(t *testing.T) {
	t.Parallel()

	l := New(3*time.Second, 100*time.Millisecond, 500*time.Millisecond)

	var slept []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("AwaitSlot returned error: %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first call waited %v, expected no wait", slept)
	}
}

func TestAwaitSlotEnforcesSpacing(t *testing.T) {
	t.Parallel()

	l := New(3*time.Second, 100*time.Millisecond, 500*time.Millisecond)

	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	var slept []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		current = current.Add(d)
		return nil
	}

	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("first AwaitSlot: %v", err)
	}

	// One second of caller work elapses between calls; it must count
	// against the enforced spacing.
	current = current.Add(1 * time.Second)

	if err := l.AwaitSlot(context.Background()); err != nil {
		t.Fatalf("second AwaitSlot: %v", err)
	}

	if len(slept) != 1 {
		t.Fatalf("expected exactly one wait, got %d", len(slept))
	}

	min := 2*time.Second + 100*time.Millisecond
	max := 2*time.Second + 500*time.Millisecond
	if slept[0] < min || slept[0] > max {
		t.Fatalf("wait %v outside [%v, %v]", slept[0], min, max)
	}
}

func TestAwaitSlotWallClockSpacing(t *testing.T) {
	t.Parallel()

	const calls = 4
	interval := 10 * time.Millisecond
	l := New(interval, time.Millisecond, 2*time.Millisecond)

	start := time.Now()
	for i := 0; i < calls; i++ {
		if err := l.AwaitSlot(context.Background()); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if want := time.Duration(calls-1) * interval; elapsed < want {
		t.Fatalf("%d calls finished in %v, expected at least %v", calls, elapsed, want)
	}
}

func TestAwaitSlotCancelledContext(t *testing.T) {
	t.Parallel()

	l := New(time.Hour, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.AwaitSlot(ctx); err != nil {
		t.Fatalf("first AwaitSlot: %v", err)
	}

	cancel()
	if err := l.AwaitSlot(ctx); err == nil {
		t.Fatal("expected cancellation error on second call")
	}
}
