package server

import (
	"errors"
	"net/http"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/app"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/auth"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/metrics"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/mw"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler 聚合所有 HTTP handler，依赖注入进程状态。
type Handler struct {
	st           *app.State
	cookieSecure bool
}

func NewHandler(st *app.State, cookieSecure bool) *Handler {
	return &Handler{st: st, cookieSecure: cookieSecure}
}

func reqLog(c *gin.Context) *zerolog.Logger {
	return zerolog.Ctx(c.Request.Context())
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Session 返回本次进程的启动时间。
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Session)
}

// Register 处理用户名注册：校验 → 限流 → 登记 → 记录活动 → 签发 token。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	username, err := service.NormalizeUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 2-20 characters"})
		return
	}
	if !mw.Admit(c, h.st.Limiter, h.st.RegisterPolicy) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.st.Users.Register(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		case errors.Is(err, service.ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 2-20 characters"})
		default:
			reqLog(c).Error().Err(err).Str("username", username).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		}
		return
	}
	h.st.Activity.Record(ctx, mw.ClientAddress(c), user.Username)

	token, err := h.st.Auth.Issue(user.Username)
	if err != nil {
		reqLog(c).Error().Err(err).Str("username", user.Username).Msg("register issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}
	metrics.RegistrationsTotal.Inc()
	auth.SetTokenCookie(c.Writer, c.Request, token, h.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"token": token, "username": user.Username})
}

// Send 追加一条密文消息。身份校验与限流由路由上的中间件完成。
func (h *Handler) Send(c *gin.Context) {
	var req struct {
		EncryptedText string `json:"encryptedText"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	username := auth.GetUsername(c)
	ctx := c.Request.Context()
	msg, err := h.st.Messages.Append(ctx, username, req.EncryptedText)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "encryptedText is required"})
		case errors.Is(err, service.ErrMessageTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"error": "encryptedText too large"})
		case errors.Is(err, service.ErrUnknownUser):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		default:
			reqLog(c).Error().Err(err).Str("username", username).Msg("send")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}
	h.st.Activity.Record(ctx, mw.ClientAddress(c), username)
	metrics.MessagesTotal.Inc()
	h.st.Hub.Publish(msg)
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": msg})
}

func (h *Handler) Messages(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Messages.List())
}

func (h *Handler) Users(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Users.ListPublic())
}
