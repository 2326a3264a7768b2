package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLen = 16

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// TokenSecret 用于签发 bearer token，必须由部署方提供。
	TokenSecret string

	StoreDriver string
	DataDir     string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string

	RegisterLimit      int
	RegisterWindow     time.Duration
	SendLimit          int
	SendWindow         time.Duration
	GlobalRPS          float64
	GlobalBurst        int
	RateLimitSweepTick time.Duration

	StaticDir       string
	TrustedProxies  []string
	AllowedOrigins  []string
	CookieSecure    string
	MaxMessageBytes int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// getenvFloat 允许 0，用于关闭对应功能。
func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() Config {
	return Config{
		Port:               getenv("APP_PORT", "3000"),
		Env:                getenv("APP_ENV", "dev"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		TokenSecret:        os.Getenv("TOKEN_SECRET"),
		StoreDriver:        getenv("STORE_DRIVER", "file"),
		DataDir:            getenv("DATA_DIR", "./data"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RegisterLimit:      getenvInt("REGISTER_RATE_LIMIT", 5),
		RegisterWindow:     getenvDuration("REGISTER_RATE_WINDOW", time.Minute),
		SendLimit:          getenvInt("SEND_RATE_LIMIT", 30),
		SendWindow:         getenvDuration("SEND_RATE_WINDOW", time.Minute),
		GlobalRPS:          getenvFloat("GLOBAL_RPS", 20),
		GlobalBurst:        getenvInt("GLOBAL_BURST", 40),
		RateLimitSweepTick: getenvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		StaticDir:          getenv("STATIC_DIR", "./public"),
		TrustedProxies:     getenvList("TRUSTED_PROXIES"),
		AllowedOrigins:     getenvList("ALLOWED_ORIGINS"),
		CookieSecure:       getenv("COOKIE_SECURE", "auto"),
		MaxMessageBytes:    getenvInt("MAX_MESSAGE_BYTES", 64*1024),
	}
}

// Validate 检查配置是否可用于启动。dev 环境允许空 secret，由 EnsureSecret 补齐。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	switch cfg.StoreDriver {
	case "file", "memory", "sqlite":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return errors.New("config: STORE_DRIVER=postgres requires DATABASE_DSN")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.CookieSecure {
	case "auto", "always":
	default:
		return fmt.Errorf("config: COOKIE_SECURE must be auto or always, got %q", cfg.CookieSecure)
	}
	if cfg.Env != "dev" && len(cfg.TokenSecret) < minSecretLen {
		return fmt.Errorf("config: TOKEN_SECRET must be at least %d bytes outside dev", minSecretLen)
	}
	return nil
}

// EnsureSecret 在 dev 环境下为空 secret 生成一个随机值，返回是否生成。
func EnsureSecret(cfg *Config) (bool, error) {
	if cfg.TokenSecret != "" || cfg.Env != "dev" {
		return false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("config: generate secret: %w", err)
	}
	cfg.TokenSecret = hex.EncodeToString(b)
	return true, nil
}
