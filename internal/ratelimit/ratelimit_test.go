package ratelimit

import (
	"errors"
	"testing"
)

func TestBurstThenLimited(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("user-a"); err != nil {
			t.Fatalf("request %d within burst rejected: %v", i, err)
		}
	}
	if err := l.Allow("user-a"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("exhausted bucket: got %v, want ErrRateLimited", err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("user-a"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("user-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("user-a should be limited")
	}
	if err := l.Allow("user-b"); err != nil {
		t.Errorf("user-b must have its own bucket: %v", err)
	}
}

func TestUnlimitedDefault(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("anyone"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestOverrideOnUnlimitedDefault(t *testing.T) {
	l := NewLimiter(Config{})
	l.SetRate("integration-x", Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("integration-x"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("integration-x"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("override must cap an otherwise unlimited key: got %v", err)
	}
	if err := l.Allow("someone-else"); err != nil {
		t.Errorf("other keys stay unlimited: %v", err)
	}
}

func TestPerKeyOverride(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 10})
	l.SetRate("integration-x", Config{RequestsPerMinute: 60, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if err := l.Allow("integration-x"); err != nil {
			t.Fatalf("override burst request %d: %v", i, err)
		}
	}
	if err := l.Allow("integration-x"); !errors.Is(err, ErrRateLimited) {
		t.Error("override capacity should be 2, not the default 10")
	}

	// Other keys keep the default capacity.
	for i := 0; i < 10; i++ {
		if err := l.Allow("other"); err != nil {
			t.Fatalf("default bucket request %d: %v", i, err)
		}
	}

	l.ClearRate("integration-x")
	if err := l.Allow("integration-x"); err != nil {
		t.Errorf("after ClearRate the key gets a fresh default bucket: %v", err)
	}
}
