package services

import (
	"testing"
	"time"
)

func TestSlidingWindow_AllowsUpToMax(t *testing.T) {
	w := newSlidingWindow(2, time.Minute)

	for i := 0; i < 2; i++ {
		if !w.allow("s1") {
			t.Fatalf("call %d should be allowed", i+1)
		}
		w.record("s1")
	}
	if w.allow("s1") {
		t.Fatalf("third call inside window should be rejected")
	}
}

func TestSlidingWindow_RejectionNotRecorded(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	w := newSlidingWindow(1, time.Minute)
	w.now = func() time.Time { return now }

	if !w.allow("s1") {
		t.Fatalf("first call should be allowed")
	}
	w.record("s1")

	// Hammering while rejected must not extend the window.
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		if w.allow("s1") {
			t.Fatalf("call during window should be rejected")
		}
	}

	// One minute after the single accepted call, the budget is back.
	now = base.Add(61 * time.Second)
	if !w.allow("s1") {
		t.Fatalf("call after window should be allowed")
	}
}

func TestSlidingWindow_KeysAreIndependent(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)

	w.record("s1")
	if w.allow("s1") {
		t.Fatalf("s1 should be exhausted")
	}
	if !w.allow("s2") {
		t.Fatalf("s2 must have its own budget")
	}
}

func TestSlidingWindow_DisabledWhenMaxZero(t *testing.T) {
	w := newSlidingWindow(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !w.allow("s1") {
			t.Fatalf("disabled limiter must always allow")
		}
		w.record("s1")
	}

	var nilW *slidingWindow
	if !nilW.allow("s1") {
		t.Fatalf("nil limiter must always allow")
	}
	nilW.record("s1") // must not panic
}
