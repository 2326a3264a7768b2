package service

import (
	"context"
	"sync"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/store"

	"github.com/rs/zerolog/log"
)

// ActivityLog 记录每个客户端地址上出现过的用户名，仅用于事后排查滥用。
type ActivityLog struct {
	mu      sync.Mutex
	store   store.Store
	entries models.ActivityLog
}

func NewActivityLog(st store.Store) *ActivityLog {
	return &ActivityLog{store: st, entries: make(models.ActivityLog)}
}

// Record 追加一条记录。持久化失败只记日志，不影响请求。
func (a *ActivityLog) Record(ctx context.Context, address, username string) {
	if address == "" {
		address = "unknown"
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[address] = append(a.entries[address], username)
	if err := a.store.ReplaceAll(ctx, store.ActivityLog, a.entries); err != nil {
		log.Warn().Err(err).Str("address", address).Str("username", username).Msg("activity log persist")
	}
}

// Snapshot 返回当前记录的深拷贝。
func (a *ActivityLog) Snapshot() models.ActivityLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(models.ActivityLog, len(a.entries))
	for k, v := range a.entries {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (a *ActivityLog) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(models.ActivityLog)
	return a.store.ReplaceAll(ctx, store.ActivityLog, a.entries)
}
