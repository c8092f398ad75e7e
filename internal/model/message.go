// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageSender 消息发送方常量
const (
	MessageSenderUser      = "user"      // 用户消息
	MessageSenderAssistant = "assistant" // AI 助手响应
)

// Message 消息模型
// 对应数据库表 messages
// 存储聊天中的每一条消息，按 ID 升序即为对话顺序
type Message struct {
	// ID 消息唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ChatID 所属聊天ID，外键关联 chats.id
	ChatID int64 `gorm:"index;not null" json:"chat_id"`

	// Sender 发送方
	// user: 用户发送的消息
	// assistant: AI 助手的响应
	Sender string `gorm:"size:20;not null" json:"sender"`

	// Content 消息内容
	// 使用 TEXT 类型存储，可以存储较长的内容
	Content string `gorm:"type:text;not null" json:"content"`

	// ImageData 附带的图片，可选
	// Base64 编码，使用 TEXT 类型
	ImageData *string `gorm:"type:text" json:"image_data,omitempty"`

	// CreatedAt 消息创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Chat 所属聊天（多对一关系）
	Chat *Chat `gorm:"foreignKey:ChatID" json:"chat,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
