package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrMissingToken     = errors.New("missing token")
	ErrInvalidSignature = errors.New("invalid token")
	ErrUnknownUser      = errors.New("unknown user")
)

// Claims 只绑定用户名，不带过期时间：token 的有效期等于本次进程中注册表的生命周期。
type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// UserResolver 由注册表实现，每次校验都重新查询。
type UserResolver interface {
	Resolve(username string) (models.User, bool)
}

type Authenticator struct {
	key   []byte
	users UserResolver
}

// DeriveKey 从配置的 secret 派生出 HS256 签名密钥。
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("auth: empty token secret")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("chat-relay token signing"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("auth: derive key: %w", err)
	}
	return key, nil
}

func NewAuthenticator(secret string, users UserResolver) (*Authenticator, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Authenticator{key: key, users: users}, nil
}

func (a *Authenticator) Issue(username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  username,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Verify 校验签名，并要求用户名仍在当前注册表中。
func (a *Authenticator) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !token.Valid || claims.Username == "" {
		return "", ErrInvalidSignature
	}
	if _, ok := a.users.Resolve(claims.Username); !ok {
		return "", ErrUnknownUser
	}
	return claims.Username, nil
}

// TokenFromRequest 取出请求携带的 token，cookie 优先于 Authorization 头。
func TokenFromRequest(r *http.Request) string {
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

// Middleware 保护需要登录的接口，校验通过后把用户名放入上下文。
func Middleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := a.Verify(TokenFromRequest(c.Request))
		if err != nil {
			switch {
			case errors.Is(err, ErrMissingToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			case errors.Is(err, ErrUnknownUser):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

func GetUsername(c *gin.Context) string {
	return c.GetString("username")
}
