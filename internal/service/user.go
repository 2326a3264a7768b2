package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/store"
)

const (
	MinUsernameLen = 2
	MaxUsernameLen = 20
)

// Registry 是用户名到注册记录的唯一权威映射，进程启动时清空。
type Registry struct {
	mu    sync.RWMutex
	store store.Store
	clock clock.Clock
	users map[string]models.User
	order []string
}

func NewRegistry(st store.Store, clk clock.Clock) *Registry {
	return &Registry{store: st, clock: clk, users: make(map[string]models.User)}
}

// NormalizeUsername 去掉首尾空白并校验长度（按字符计）。
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLen || n > MaxUsernameLen {
		return "", fmt.Errorf("%w: length must be between %d and %d", ErrInvalidUsername, MinUsernameLen, MaxUsernameLen)
	}
	return username, nil
}

// Register 校验并登记新用户名，查重与写入在同一把锁内完成。
func (r *Registry) Register(ctx context.Context, username string) (models.User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return models.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; ok {
		return models.User{}, ErrUsernameTaken
	}
	user := models.User{Username: username, CreatedAt: r.clock.Now()}
	r.users[username] = user
	r.order = append(r.order, username)
	if err := r.store.ReplaceAll(ctx, store.Users, r.snapshotLocked()); err != nil {
		delete(r.users, username)
		r.order = r.order[:len(r.order)-1]
		return models.User{}, fmt.Errorf("persist users: %w", err)
	}
	return user, nil
}

func (r *Registry) Resolve(username string) (models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	return u, ok
}

// ListPublic 按注册顺序返回全部用户名。
func (r *Registry) ListPublic() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Reset 清空注册表，已签发的 token 随之全部失效。
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]models.User)
	r.order = nil
	return r.store.ReplaceAll(ctx, store.Users, []models.User{})
}

func (r *Registry) snapshotLocked() []models.User {
	out := make([]models.User, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.users[name])
	}
	return out
}
