package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore 以 JSON 形式保存快照，语义与文件后端一致。
type MemoryStore struct {
	mu   sync.Mutex
	docs map[Collection][]byte
	// FailOn 非空时对应集合的写入会失败，用于测试错误路径。
	FailOn map[Collection]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[Collection][]byte), FailOn: make(map[Collection]error)}
}

func (s *MemoryStore) LoadAll(_ context.Context, c Collection, dst any) error {
	s.mu.Lock()
	b, ok := s.docs[c]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(b, dst)
}

func (s *MemoryStore) ReplaceAll(_ context.Context, c Collection, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn[c]; err != nil {
		return fmt.Errorf("store: write %s: %w", c, err)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c, err)
	}
	s.docs[c] = b
	return nil
}

// SetFailure 设置或清除某个集合的写入错误。
func (s *MemoryStore) SetFailure(c Collection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.FailOn, c)
		return
	}
	s.FailOn[c] = err
}

func (s *MemoryStore) Close() error { return nil }
