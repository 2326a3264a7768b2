// Package app 组装一次进程运行所需的全部共享状态。
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/auth"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/config"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/mw"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/ratelimit"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/service"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/store"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/ws"

	"golang.org/x/time/rate"
)

// State 是显式的进程级状态，由 New 初始化后注入到各个 handler。
// 每次启动都会清空所有集合，聊天室只存在于本次运行期间。
type State struct {
	Clock    clock.Clock
	Store    store.Store
	Users    *service.Registry
	Messages *service.MessageLog
	Activity *service.ActivityLog
	Auth     *auth.Authenticator
	Limiter  ratelimit.Limiter

	// Window 在未配置 Redis 时与 Limiter 相同，用于后台清理。
	Window  *ratelimit.Window
	Flood   *mw.RL
	Hub     *ws.Hub
	Session models.Session

	RegisterPolicy mw.Policy
	SendPolicy     mw.Policy
}

// Options 允许调用方替换时钟和限流后端，未设置时使用默认实现。
type Options struct {
	Clock   clock.Clock
	Limiter ratelimit.Limiter
}

// New 重置持久化集合并构建 State。cfg.TokenSecret 必须已经就绪。
func New(ctx context.Context, cfg config.Config, st store.Store, opts Options) (*State, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	s := &State{
		Clock:    clk,
		Store:    st,
		Hub:      ws.NewHub(),
		Session:  models.Session{StartTime: clk.Now()},
		Activity: service.NewActivityLog(st),
		RegisterPolicy: mw.Policy{
			Route: "register", Max: cfg.RegisterLimit, Window: cfg.RegisterWindow,
		},
		SendPolicy: mw.Policy{
			Route: "send", Max: cfg.SendLimit, Window: cfg.SendWindow,
		},
	}
	s.Users = service.NewRegistry(st, clk)
	s.Messages = service.NewMessageLog(st, clk, s.Users, cfg.MaxMessageBytes)

	authn, err := auth.NewAuthenticator(cfg.TokenSecret, s.Users)
	if err != nil {
		return nil, err
	}
	s.Auth = authn

	s.Limiter = opts.Limiter
	if s.Limiter == nil {
		s.Window = ratelimit.NewWindow(clk)
		s.Limiter = s.Window
	}
	if cfg.GlobalRPS > 0 {
		s.Flood = mw.NewRateLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst, 2*time.Minute)
	}

	if err := s.reset(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) reset(ctx context.Context) error {
	if err := s.Users.Reset(ctx); err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	if err := s.Messages.Reset(ctx); err != nil {
		return fmt.Errorf("reset messages: %w", err)
	}
	if err := s.Activity.Reset(ctx); err != nil {
		return fmt.Errorf("reset activity log: %w", err)
	}
	if err := s.Store.ReplaceAll(ctx, store.Session, s.Session); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}
