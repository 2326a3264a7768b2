package mw

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/metrics"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientAddress 返回请求方地址；拿不到时归入 "unknown" 桶。
func ClientAddress(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return ratelimit.UnknownKey
}

// Policy 描述某个路由的滑动窗口配额。
type Policy struct {
	Route  string
	Max    int
	Window time.Duration
}

// Admit 按 policy 检查当前客户端，超限时直接写出 429 并返回 false。
// 限流后端出错时放行，避免 Redis 故障导致整个服务不可用。
// 不同路由的计数互不影响，key 形如 "register|10.0.0.1"。
func Admit(c *gin.Context, lim ratelimit.Limiter, p Policy) bool {
	addr := ClientAddress(c)
	ok, err := lim.Admit(c.Request.Context(), p.Route+"|"+addr, p.Max, p.Window)
	if err != nil {
		log.Warn().Err(err).Str("route", p.Route).Str("address", addr).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.RateLimitedTotal.WithLabelValues(p.Route).Inc()
		c.Header("Retry-After", RetryAfter(p.Window))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return false
	}
	return true
}

// RetryAfter 把窗口长度向上取整为秒，至少为 1。
func RetryAfter(window time.Duration) string {
	secs := int(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// SlidingWindow 把 Admit 包装成中间件。
func SlidingWindow(lim ratelimit.Limiter, p Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Admit(c, lim, p) {
			return
		}
		c.Next()
	}
}

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// RL 是按 IP 的令牌桶，作为写接口的粗粒度防刷保护。
type RL struct {
	mu  sync.Mutex
	m   map[string]*keyLimiter
	r   rate.Limit
	b   int
	ttl time.Duration
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RL {
	return &RL{m: make(map[string]*keyLimiter), r: r, b: burst, ttl: ttl}
}

func (rl *RL) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.m[key]
	if ok {
		kl.ts = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(rl.r, rl.b)
	rl.m[key] = &keyLimiter{lim: lim, ts: time.Now()}
	return lim
}

func (rl *RL) gc(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.m {
		if now.Sub(v.ts) > rl.ttl {
			delete(rl.m, k)
		}
	}
}

// RunGC 定期清理长时间不活跃的 IP，直到 ctx 结束。
func (rl *RL) RunGC(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			rl.gc(now)
		}
	}
}

// Middleware 返回基于客户端 IP 的令牌桶限速中间件。
func (rl *RL) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.get(ClientAddress(c)).Allow() {
			metrics.RateLimitedTotal.WithLabelValues("global").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
