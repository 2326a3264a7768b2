package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/store"
)

// MessageLog 是只追加的消息日志，按写入顺序返回。
type MessageLog struct {
	mu       sync.RWMutex
	store    store.Store
	clock    clock.Clock
	users    *Registry
	maxBytes int
	msgs     []models.Message
	lastID   int64
}

func NewMessageLog(st store.Store, clk clock.Clock, users *Registry, maxBytes int) *MessageLog {
	return &MessageLog{store: st, clock: clk, users: users, maxBytes: maxBytes}
}

// Append 追加一条密文消息。id 取毫秒时间戳，并保证严格递增。
func (l *MessageLog) Append(ctx context.Context, username, encryptedText string) (models.Message, error) {
	if encryptedText == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if l.maxBytes > 0 && len(encryptedText) > l.maxBytes {
		return models.Message{}, ErrMessageTooLarge
	}
	if _, ok := l.users.Resolve(username); !ok {
		return models.Message{}, ErrUnknownUser
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	msg := models.Message{ID: id, Username: username, EncryptedText: encryptedText, Timestamp: now}
	prevID := l.lastID
	l.msgs = append(l.msgs, msg)
	l.lastID = id
	if err := l.store.ReplaceAll(ctx, store.Messages, l.msgs); err != nil {
		l.msgs = l.msgs[:len(l.msgs)-1]
		l.lastID = prevID
		return models.Message{}, fmt.Errorf("persist messages: %w", err)
	}
	return msg, nil
}

// List 返回消息日志的完整副本。
func (l *MessageLog) List() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *MessageLog) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
	l.lastID = 0
	return l.store.ReplaceAll(ctx, store.Messages, []models.Message{})
}
