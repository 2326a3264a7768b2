// Package store 持久化聊天室的四个集合，每个集合只支持整体读取与整体替换。
package store

import (
	"context"
	"errors"
	"fmt"
)

type Collection string

const (
	Users       Collection = "users"
	Messages    Collection = "messages"
	Session     Collection = "session"
	ActivityLog Collection = "activity-log"
)

var ErrNotFound = errors.New("collection not found")

type Store interface {
	// LoadAll 把集合内容解码到 dst；集合不存在时返回 ErrNotFound。
	LoadAll(ctx context.Context, c Collection, dst any) error
	ReplaceAll(ctx context.Context, c Collection, data any) error
	Close() error
}

// Open 按驱动名创建存储后端。
func Open(driver, dataDir, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", "file":
		s, err = NewFileStore(dataDir)
	case "memory":
		s = NewMemoryStore()
	case "postgres":
		s, err = OpenPostgres(dsn)
	case "sqlite":
		s, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
