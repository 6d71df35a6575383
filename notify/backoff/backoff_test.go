package backoff

import (
	"context"
	"testing"
	"time"
)

func TestPolicy_CeilingDoublesUntilCapped(t *testing.T) {
	p := New(100*time.Millisecond, 1*time.Second)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second}, // would be 1.6s uncapped, clamps to Max
		{20, 1 * time.Second},
	}
	for _, c := range cases {
		if got := p.ceiling(c.attempt); got != c.want {
			t.Errorf("ceiling(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestPolicy_CeilingNeverOverflowsForLargeAttempts(t *testing.T) {
	p := New(time.Millisecond, time.Second)
	if got := p.ceiling(10_000); got != p.Max {
		t.Errorf("ceiling(10000) = %v, want %v (saturated)", got, p.Max)
	}
}

func TestPolicy_CeilingZeroForNonPositiveAttempt(t *testing.T) {
	p := New(0, 0)
	if got := p.ceiling(0); got != 0 {
		t.Errorf("ceiling(0) = %v, want 0", got)
	}
}

func TestNew_SubstitutesDefaultsForZero(t *testing.T) {
	p := New(0, 0)
	if p.Base != DefaultBase {
		t.Errorf("Base = %v, want %v", p.Base, DefaultBase)
	}
	if p.Max != DefaultMax {
		t.Errorf("Max = %v, want %v", p.Max, DefaultMax)
	}
}

func TestPolicy_WaitStaysWithinCeiling(t *testing.T) {
	p := New(10*time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	if err := p.Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait took %v, expected within the jittered ceiling", elapsed)
	}
}

func TestPolicy_WaitReturnsContextError(t *testing.T) {
	p := New(1*time.Second, 1*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx, 1); err == nil {
		t.Error("expected context error, got nil")
	}
}
