// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MaxPinnedChats 每个用户最多可以置顶的聊天数量
const MaxPinnedChats = 5

// Chat 聊天模型
// 对应数据库表 chats
// 表示用户与 AI 的一个对话窗口
// 每个本地聊天关联 AI 服务端的一个远程会话
type Chat struct {
	// ID 聊天唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Title 聊天标题
	Title string `gorm:"size:200;not null" json:"title"`

	// OwnerID 所属用户ID，外键关联 users.id
	OwnerID int64 `gorm:"index;not null" json:"owner_id"`

	// IsPinned 是否置顶
	// 每个用户的置顶数量不能超过 MaxPinnedChats
	IsPinned bool `gorm:"default:false;not null" json:"is_pinned"`

	// RemoteSessionID AI 服务端的会话标识
	// 远程会话的生命周期由 AI 服务端管理，这里只记录关联
	RemoteSessionID string `gorm:"size:64;index;not null" json:"remote_session_id"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Owner 所属用户（多对一关系）
	Owner *User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	// Messages 聊天中的所有消息（一对多关系）
	Messages []Message `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// TableName 指定表名
func (Chat) TableName() string {
	return "chats"
}
