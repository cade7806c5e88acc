package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRateLimited = errors.New("too many sign-in attempts")

// signInLimiter counts failed sign-ins per email in fixed Redis windows.
// A nil limiter allows everything.
type signInLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

func newSignInLimiter(client redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *signInLimiter {
	if client == nil || maxAttempts <= 0 {
		return nil
	}
	return &signInLimiter{
		redis:       client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (l *signInLimiter) key(email string) string {
	return l.prefix + ":signin:" + strings.ToLower(email)
}

func (l *signInLimiter) check(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read sign-in counter: %w", err)
	}
	if count >= int64(l.maxAttempts) {
		return errRateLimited
	}
	return nil
}

func (l *signInLimiter) fail(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	key := l.key(email)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment sign-in counter: %w", err)
	}
	// The window starts at the first failure.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("expire sign-in counter: %w", err)
		}
	}
	return nil
}

func (l *signInLimiter) reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(email)).Err(); err != nil {
		return fmt.Errorf("reset sign-in counter: %w", err)
	}
	return nil
}
