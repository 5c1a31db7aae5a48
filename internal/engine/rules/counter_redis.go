package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript runs prune, append and conditional reset as one atomic step.
// Scores are event times in milliseconds; members are event ids. The window
// is anchored at the newest time seen for the key, so late events outside it
// are not counted. Ids consumed by a trigger move to the fired set and are not
// counted again while they are inside the window.
var hitScript = redis.NewScript(`
	local key = KEYS[1]
	local fired = KEYS[2]
	local at = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local threshold = tonumber(ARGV[3])
	local member = ARGV[4]

	local newest = at
	for _, k in ipairs({key, fired}) do
		local top = redis.call('ZREVRANGE', k, 0, 0, 'WITHSCORES')
		if top[2] and tonumber(top[2]) > newest then
			newest = tonumber(top[2])
		end
	end

	local cutoff = newest - window
	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)
	redis.call('ZREMRANGEBYSCORE', fired, '-inf', '(' .. cutoff)

	if at < cutoff or redis.call('ZSCORE', fired, member) then
		return {0, redis.call('ZCARD', key)}
	end

	redis.call('ZADD', key, 'NX', at, member)

	local count = redis.call('ZCARD', key)
	if count >= threshold then
		redis.call('ZUNIONSTORE', fired, 2, fired, key, 'AGGREGATE', 'MAX')
		redis.call('DEL', key)
		redis.call('PEXPIRE', fired, window)
		return {1, count}
	end

	redis.call('PEXPIRE', key, window)
	return {0, count}
`)

type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) Hit(ctx context.Context, key CounterKey, eventID string, at time.Time, window time.Duration, threshold int) (HitResult, error) {
	// The hash tag keeps both keys in one cluster slot.
	redisKey := fmt.Sprintf("%s:counter:{%s|%s}", c.prefix, key.RuleID, key.ScopeKey)

	res, err := hitScript.Run(ctx, c.client, []string{redisKey, redisKey + ":fired"},
		at.UnixMilli(), window.Milliseconds(), threshold, eventID).Int64Slice()
	if err != nil {
		return HitResult{}, fmt.Errorf("counter hit: %w", err)
	}
	if len(res) != 2 {
		return HitResult{}, fmt.Errorf("counter hit: unexpected reply %v", res)
	}
	return HitResult{Triggered: res[0] == 1, Count: int(res[1])}, nil
}
