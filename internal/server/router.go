package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/app"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/auth"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/config"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/metrics"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/mw"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter 统一初始化 Gin 中间件、聊天接口、消息流以及静态页面。
func SetupRouter(cfg config.Config, st *app.State) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// 只信任显式配置的反向代理，否则 X-Forwarded-For 可以伪造客户端地址绕过限流。
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Strs("proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(mw.RequestLog())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))

	h := NewHandler(st, cfg.CookieSecure == "always")

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.Health)

	chat := api.Group("/chat")
	chat.GET("/session", h.Session)

	// 防刷令牌桶只挂在写接口上，读接口不限流。
	writes := chat.Group("")
	if st.Flood != nil {
		writes.Use(st.Flood.Middleware())
	}
	writes.POST("/register", h.Register)
	writes.POST("/send", auth.Middleware(st.Auth), mw.SlidingWindow(st.Limiter, st.SendPolicy), h.Send)
	chat.GET("/messages", h.Messages)
	chat.GET("/users", h.Users)
	chat.GET("/stream", ws.Serve(st.Hub))

	r.NoRoute(staticFallback(cfg.StaticDir))
	return r
}

// staticFallback 先尝试静态文件，其余路径返回入口页面，交给前端路由处理。
func staticFallback(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		rel := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
		if rel == "api" || strings.HasPrefix(rel, "api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if rel != "" {
			target := filepath.Join(dir, filepath.FromSlash(rel))
			if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
				c.File(target)
				return
			}
			if strings.Contains(path.Base(rel), ".") {
				c.Status(http.StatusNotFound)
				return
			}
		}
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}
