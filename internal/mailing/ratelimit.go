package mailing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailforge/bulksender/internal/domain"
)

// AccountRateLimiter enforces per-account hourly and daily send caps with
// fixed-window counters in redis. Accounts with a zero cap are unlimited
// for that window. A nil client disables limiting entirely, which is the
// single-process default.
type AccountRateLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewAccountRateLimiter(client *redis.Client) *AccountRateLimiter {
	return &AccountRateLimiter{
		client: client,
		prefix: "bulksender:ratelimit",
		now:    time.Now,
	}
}

// Allow reports whether the account may send one more message right now
// and, when it may, consumes one unit from both windows.
func (l *AccountRateLimiter) Allow(ctx context.Context, acct *domain.MailAccount) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	if acct.MaxPerHour <= 0 && acct.MaxPerDay <= 0 {
		return true, nil
	}

	now := l.now().UTC()
	hourKey := l.key(acct, "hour", now.Format("2006010215"))
	if acct.MaxPerHour > 0 {
		ok, err := l.consume(ctx, hourKey, acct.MaxPerHour, 2*time.Hour)
		if err != nil || !ok {
			return ok, err
		}
	}
	if acct.MaxPerDay > 0 {
		ok, err := l.consume(ctx, l.key(acct, "day", now.Format("20060102")), acct.MaxPerDay, 48*time.Hour)
		if err != nil || !ok {
			// The hourly unit was already taken; hand it back so a
			// day-capped account keeps its full hour budget.
			if acct.MaxPerHour > 0 {
				if rerr := l.refund(ctx, hourKey); rerr != nil && err == nil {
					err = rerr
				}
			}
			return ok, err
		}
	}
	return true, nil
}

func (l *AccountRateLimiter) key(acct *domain.MailAccount, window, stamp string) string {
	return fmt.Sprintf("%s:%s:%s:%s", l.prefix, acct.ID, window, stamp)
}

func (l *AccountRateLimiter) consume(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("increment rate counter: %w", err)
	}
	if count == 1 {
		// First hit in this window owns the expiry.
		if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
			return false, fmt.Errorf("set rate counter expiry: %w", err)
		}
	}
	if count > int64(limit) {
		// Give the unit back so denied attempts do not eat the window.
		if err := l.refund(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (l *AccountRateLimiter) refund(ctx context.Context, key string) error {
	if err := l.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("return rate counter unit: %w", err)
	}
	return nil
}

// Usage returns the consumed counts for the current hour and day windows,
// for the account status endpoint.
func (l *AccountRateLimiter) Usage(ctx context.Context, acct *domain.MailAccount) (hour, day int64, err error) {
	if l == nil || l.client == nil {
		return 0, 0, nil
	}
	now := l.now().UTC()
	hour, err = l.client.Get(ctx, l.key(acct, "hour", now.Format("2006010215"))).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("read hourly counter: %w", err)
	}
	day, err = l.client.Get(ctx, l.key(acct, "day", now.Format("20060102"))).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("read daily counter: %w", err)
	}
	return hour, day, nil
}
