package models

import "time"

type User struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message 中的 EncryptedText 是客户端加密后的密文，服务端不解析。
type Message struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	EncryptedText string    `json:"encryptedText"`
	Timestamp     time.Time `json:"timestamp"`
}

// Session 记录本次进程的启动时间，客户端据此判断服务是否重启。
type Session struct {
	StartTime time.Time `json:"startTime"`
}

// ActivityLog 以客户端地址为 key，按时间顺序记录用户名。
type ActivityLog map[string][]string

// Document 是数据库后端中一个集合的整体快照。
type Document struct {
	Name      string `gorm:"primaryKey;size:64"`
	Data      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Document) TableName() string { return "collections" }
