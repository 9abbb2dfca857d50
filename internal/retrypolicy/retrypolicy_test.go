package retrypolicy

import (
	"testing"
	"time"
)

func TestGetDelayExhaustsAfterMaxAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 2, MinDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	if _, ok := GetDelay(cfg, 0); !ok {
		t.Fatalf("expected a delay for attempt 0")
	}
	if _, ok := GetDelay(cfg, 1); !ok {
		t.Fatalf("expected a delay for attempt 1")
	}
	if _, ok := GetDelay(cfg, 2); ok {
		t.Fatalf("expected exhaustion at attempt 2 (MaxAttempts=2)")
	}
}

func TestGetDelayGrowsExponentiallyAndCaps(t *testing.T) {
	cfg := Config{MaxAttempts: 10, MinDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	d0, _ := GetDelay(cfg, 0)
	d1, _ := GetDelay(cfg, 1)
	d2, _ := GetDelay(cfg, 2)

	if d0 != 100*time.Millisecond {
		t.Fatalf("d0 = %v, want 100ms", d0)
	}
	if d1 != 200*time.Millisecond {
		t.Fatalf("d1 = %v, want 200ms", d1)
	}
	if d2 != cfg.MaxDelay {
		t.Fatalf("d2 = %v, want capped at %v", d2, cfg.MaxDelay)
	}
}
