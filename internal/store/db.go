package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DBStore 把每个集合作为 collections 表中的一行 JSON 文本保存。
type DBStore struct {
	db *gorm.DB
}

// OpenPostgres 建立到 Postgres 的连接，并带有简单的重试来等待容器就绪。
func OpenPostgres(dsn string) (*DBStore, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres driver requires DATABASE_DSN")
	}
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(2)
				sqlDB.SetMaxOpenConns(5)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return newDBStore(gdb)
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, fmt.Errorf("store: connect postgres: %w", err)
}

// OpenSQLite 打开（必要时创建）一个 SQLite 数据库文件。
func OpenSQLite(path string) (*DBStore, error) {
	if path == "" {
		path = "chat.db"
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite 只允许一个写者。
	sqlDB.SetMaxOpenConns(1)
	return newDBStore(gdb)
}

func newDBStore(gdb *gorm.DB) (*DBStore, error) {
	if err := gdb.AutoMigrate(&models.Document{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &DBStore{db: gdb}, nil
}

func (s *DBStore) LoadAll(ctx context.Context, c Collection, dst any) error {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("name = ?", string(c)).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("store: load %s: %w", c, err)
	}
	if err := json.Unmarshal([]byte(doc.Data), dst); err != nil {
		return fmt.Errorf("store: decode %s: %w", c, err)
	}
	return nil
}

func (s *DBStore) ReplaceAll(ctx context.Context, c Collection, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c, err)
	}
	doc := models.Document{Name: string(c), Data: string(b), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("store: replace %s: %w", c, err)
	}
	return nil
}

func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
