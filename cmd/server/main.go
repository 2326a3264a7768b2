package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/app"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/config"
	clog "github.com/Hromosvod-Enjoyers/Kocek/internal/log"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/ratelimit"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/server"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// main 负责加载配置、初始化日志与存储、重置聊天室状态并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	generated, err := config.EnsureSecret(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("token secret")
	}
	if generated {
		log.Warn().Msg("TOKEN_SECRET not set, using a random secret for this run")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StoreDriver, cfg.DataDir, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store open")
	}
	defer st.Close()

	opts := app.Options{Clock: clock.System{}}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed, limiter will fail open until it recovers")
		}
		opts.Limiter = ratelimit.NewRedisWindow(rdb, "chat:ratelimit:", opts.Clock)
	}

	state, err := app.New(ctx, cfg, st, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("reset state")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, state),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return state.Hub.Run(gctx) })
	if state.Window != nil {
		g.Go(func() error { return state.Window.RunSweeper(gctx, cfg.RateLimitSweepTick) })
	}
	if state.Flood != nil {
		g.Go(func() error { return state.Flood.RunGC(gctx) })
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Time("start_time", state.Session.StartTime).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
	log.Info().Msg("server stopped")
}
