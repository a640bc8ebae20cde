package livedata

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, 50*time.Millisecond)
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		if !b.Allow(now) {
			t.Fatalf("closed breaker should allow call %d", i)
		}
		b.RecordFailure(now)
	}

	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow(now) {
		t.Fatal("open breaker should not allow calls before cooldown")
	}
}

func TestBreaker_HalfOpenProbeThenClose(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)
	t0 := time.Unix(0, 0)

	b.Allow(t0)
	b.RecordFailure(t0)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	t1 := t0.Add(20 * time.Millisecond)
	if !b.Allow(t1) {
		t.Fatal("breaker should allow a probe after cooldown")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	if b.Allow(t1) {
		t.Fatal("second concurrent probe should be rejected while one is in flight")
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)
	t0 := time.Unix(0, 0)
	b.Allow(t0)
	b.RecordFailure(t0)

	t1 := t0.Add(20 * time.Millisecond)
	b.Allow(t1)
	b.RecordFailure(t1)

	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}
