package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger stores entries as keys with a PX expiry, so Redis performs the
// lazy expiry itself.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLedger) redisKey(ruleID, scopeKey string) string {
	return fmt.Sprintf("%s:suppress:%s", l.prefix, key(ruleID, scopeKey))
}

func (l *RedisLedger) IsSuppressed(ctx context.Context, ruleID, scopeKey string) (bool, error) {
	n, err := l.client.Exists(ctx, l.redisKey(ruleID, scopeKey)).Result()
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Suppress(ctx context.Context, ruleID, scopeKey string, until time.Time) error {
	ttl := until.Sub(l.now())
	k := l.redisKey(ruleID, scopeKey)
	if ttl <= 0 {
		return l.client.Del(ctx, k).Err()
	}
	if err := l.client.Set(ctx, k, until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("write suppression: %w", err)
	}
	return nil
}
