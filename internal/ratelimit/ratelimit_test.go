package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AdmitWithinCapacity(t *testing.T) {
	l := New(3, time.Minute)
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		if !l.Admit(now.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("Admit() #%d = false, want true", i)
		}
	}
	if l.Admit(now.Add(3 * time.Second)) {
		t.Error("Admit() over capacity = true, want false")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l := New(2, time.Minute)
	now := time.Unix(1000, 0)

	if !l.Admit(now) || !l.Admit(now.Add(time.Second)) {
		t.Fatal("initial admissions failed")
	}
	if l.Admit(now.Add(2 * time.Second)) {
		t.Fatal("Admit() at capacity = true, want false")
	}

	// First admission ages out of the window; one slot frees up.
	later := now.Add(time.Minute + time.Second)
	if !l.Admit(later) {
		t.Error("Admit() after window slide = false, want true")
	}
	if l.Admit(later) {
		t.Error("Admit() refilled slot twice = true, want false")
	}
}

func TestLimiter_RejectionHasNoSideEffects(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Unix(1000, 0)

	if !l.Admit(now) {
		t.Fatal("first Admit() = false")
	}
	for i := 0; i < 10; i++ {
		l.Admit(now.Add(time.Duration(i) * time.Second))
	}
	if got := l.Pending(now.Add(10 * time.Second)); got != 1 {
		t.Errorf("Pending() = %d after rejected calls, want 1", got)
	}
}

// TestLimiter_WindowInvariant drives the limiter with a dense timestamp
// sequence and verifies that no trailing window ever contains more admissions
// than the configured capacity.
func TestLimiter_WindowInvariant(t *testing.T) {
	const (
		capacity = 5
		window   = 10 * time.Second
	)
	l := New(capacity, window)
	base := time.Unix(2000, 0)

	var admitted []time.Time
	for i := 0; i < 200; i++ {
		now := base.Add(time.Duration(i) * 137 * time.Millisecond)
		if l.Admit(now) {
			admitted = append(admitted, now)
		}
	}

	for _, end := range admitted {
		start := end.Add(-window)
		count := 0
		for _, ts := range admitted {
			if ts.After(start) && !ts.After(end) {
				count++
			}
		}
		if count > capacity {
			t.Fatalf("window ending %v holds %d admissions, cap %d", end, count, capacity)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)
	if l.maxRequests != 30 || l.window != time.Minute {
		t.Errorf("New(0,0) = cap %d window %v, want 30/1m", l.maxRequests, l.window)
	}
}
