// Package ratelimit 实现按客户端地址计数的滑动窗口限流。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"

	"github.com/rs/zerolog/log"
)

// UnknownKey 是无法识别客户端地址时使用的桶，不能绕过限流。
const UnknownKey = "unknown"

// Limiter 判断某个 key 在窗口内是否还能再请求一次。
type Limiter interface {
	Admit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error)
}

// Window 是进程内的滑动窗口限流器，所有 key 共用一把锁。
type Window struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string][]time.Time
	longest time.Duration
}

func NewWindow(clk clock.Clock) *Window {
	if clk == nil {
		clk = clock.System{}
	}
	return &Window{clock: clk, entries: make(map[string][]time.Time)}
}

// Admit 先清理过期时间戳，再判断并记录本次请求。
func (w *Window) Admit(_ context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	if key == "" {
		key = UnknownKey
	}
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if window > w.longest {
		w.longest = window
	}
	kept := prune(w.entries[key], now, window)
	if len(kept) >= maxRequests {
		w.entries[key] = kept
		return false, nil
	}
	if n := len(kept); n > 0 && now.Before(kept[n-1]) {
		now = kept[n-1]
	}
	w.entries[key] = append(kept, now)
	return true, nil
}

// Sweep 删除在最长窗口内没有任何请求的 key，返回删除数量。
func (w *Window) Sweep() int {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for k, ts := range w.entries {
		kept := prune(ts, now, w.longest)
		if len(kept) == 0 {
			delete(w.entries, k)
			removed++
			continue
		}
		w.entries[k] = kept
	}
	return removed
}

// Len 返回当前跟踪的 key 数量。
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// RunSweeper 周期性执行 Sweep，直到 ctx 结束。
func (w *Window) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := w.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Int("remaining", w.Len()).Msg("rate limit sweep")
			}
		}
	}
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	n := copy(ts, ts[i:])
	return ts[:n]
}
