package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 整个清理、计数、写入过程在 Redis 端原子执行。
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow 用有序集合实现同样的滑动窗口语义，多实例可共享计数。
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
}

func NewRedisWindow(client redis.UniversalClient, prefix string, clk clock.Clock) *RedisWindow {
	if clk == nil {
		clk = clock.System{}
	}
	return &RedisWindow{client: client, prefix: prefix, clock: clk}
}

func (r *RedisWindow) Admit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	if key == "" {
		key = UnknownKey
	}
	now := r.clock.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()
	res, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		now, window.Milliseconds(), maxRequests, member).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis admit %q: %w", key, err)
	}
	return res == 1, nil
}
