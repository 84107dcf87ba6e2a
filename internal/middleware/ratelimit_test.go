package middleware

import "testing"

func TestNewDefaultRateLimiter_BoundsByDefaultMaxAttempts(t *testing.T) {
	rl := NewDefaultRateLimiter()

	for i := 0; i < DefaultMaxAttempts; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("attempt %d should have been within DefaultMaxAttempts burst", i+1)
		}
	}
	if rl.Allow("user-1") {
		t.Fatal("attempt past DefaultMaxAttempts should have been rate limited")
	}
}

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("attempt %d should have been allowed within burst", i+1)
		}
	}

	if rl.Allow("user-1") {
		t.Fatal("4th immediate attempt should have been rate limited")
	}
}

func TestRateLimiter_PerKeyIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow("user-1") {
		t.Fatal("first attempt for user-1 should be allowed")
	}
	if !rl.Allow("user-2") {
		t.Fatal("user-2 should not be throttled by user-1's usage")
	}
}
