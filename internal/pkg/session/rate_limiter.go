package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginAttemptLimit  = 5
	loginAttemptWindow = 15 * time.Minute
)

// RateLimiter throttles login attempts per (ip, name) pair. A nil redis
// client disables it entirely, which keeps single-binary deployments
// working without redis.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLoginAttempt counts an attempt and reports whether it is still
// allowed, plus how many attempts remain in the window.
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, name string) (bool, int64, error) {
	if r.client == nil {
		return true, loginAttemptLimit, nil
	}

	key := loginKey(ip, name)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, loginAttemptWindow)
	}

	remaining := loginAttemptLimit - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= loginAttemptLimit, remaining, nil
}

// ResetLoginAttempts clears the counter after a successful login.
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, name string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, loginKey(ip, name)).Err()
}

func loginKey(ip, name string) string {
	return fmt.Sprintf("ratelimit:login:%s:%s", ip, name)
}
