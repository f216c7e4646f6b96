package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	limiter := NewRateLimiter(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i < loginAttemptLimit; i++ {
		allowed, remaining, err := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if want := int64(loginAttemptLimit - i - 1); remaining != want {
			t.Errorf("attempt %d: remaining = %d, want %d", i+1, remaining, want)
		}
	}

	allowed, remaining, err := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("attempt past the limit should be denied")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestRateLimiterKeysPerIPAndName(t *testing.T) {
	limiter := NewRateLimiter(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i <= loginAttemptLimit; i++ {
		limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice")
	}

	if allowed, _, _ := limiter.CheckLoginAttempt(ctx, "10.0.0.2", "alice"); !allowed {
		t.Error("different ip should not be throttled")
	}
	if allowed, _, _ := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "bob"); !allowed {
		t.Error("different name should not be throttled")
	}
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i <= loginAttemptLimit; i++ {
		limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice")
	}
	if allowed, _, _ := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice"); allowed {
		t.Fatal("should be throttled before reset")
	}

	if err := limiter.ResetLoginAttempts(ctx, "10.0.0.1", "alice"); err != nil {
		t.Fatal(err)
	}
	if allowed, _, _ := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice"); !allowed {
		t.Error("reset should clear the counter")
	}
}

func TestRateLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < loginAttemptLimit*3; i++ {
		allowed, _, err := limiter.CheckLoginAttempt(ctx, "10.0.0.1", "alice")
		if err != nil || !allowed {
			t.Fatal("nil client must always allow")
		}
	}
	if err := limiter.ResetLoginAttempts(ctx, "10.0.0.1", "alice"); err != nil {
		t.Fatal("nil client reset must be a no-op")
	}
}
