package channel

import (
	"testing"
	"time"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		ok, remaining, _ := rl.Allow("1.2.3.4")
		if !ok || remaining != 2-i {
			t.Fatalf("request %d: ok=%v remaining=%d", i, ok, remaining)
		}
	}
	ok, _, retry := rl.Allow("1.2.3.4")
	if ok {
		t.Fatal("fourth request should be limited")
	}
	if retry < 19*time.Second || retry > 21*time.Second {
		t.Errorf("retryAfter = %v, want about 20s", retry)
	}

	// Other clients have their own bucket.
	if ok, _, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("separate client limited")
	}

	clock = clock.Add(21 * time.Second)
	if ok, _, _ := rl.Allow("1.2.3.4"); !ok {
		t.Error("token should have refilled")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("b")

	clock = clock.Add(40 * time.Second)
	if n := rl.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1 (only a is full)", n)
	}
	clock = clock.Add(time.Minute)
	if n := rl.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.Limit() != 100 || rl.Window() != 15*time.Minute {
		t.Errorf("limit=%d window=%v", rl.Limit(), rl.Window())
	}
}
