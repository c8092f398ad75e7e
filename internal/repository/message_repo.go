// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"

	"coldnet-server/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// CreatePair 在一个事务里创建一个用户回合和对应的助手回合
// 两条消息要么都落库要么都不落库，保证对话记录不会出现
// 只有用户消息没有回复的半截状态
// 参数:
//   - ctx: 上下文
//   - userMsg: 用户消息，先插入
//   - assistantMsg: 助手消息，后插入
//
// 返回:
//   - error: 数据库错误（任何一步失败都整体回滚）
func (r *MessageRepository) CreatePair(ctx context.Context, userMsg, assistantMsg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		return tx.Create(assistantMsg).Error
	})
}

// GetByChatID 获取聊天的所有消息
// 按 ID 升序排列（创建顺序）
// 参数:
//   - ctx: 上下文
//   - chatID: 聊天ID
//
// 返回:
//   - []model.Message: 消息列表
//   - error: 数据库错误
func (r *MessageRepository) GetByChatID(ctx context.Context, chatID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// CountByChatID 统计聊天的消息数量
// 参数:
//   - ctx: 上下文
//   - chatID: 聊天ID
//
// 返回:
//   - int64: 消息数量
//   - error: 数据库错误
func (r *MessageRepository) CountByChatID(ctx context.Context, chatID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}

// DeleteByChatID 删除聊天的所有消息
// 参数:
//   - ctx: 上下文
//   - chatID: 聊天ID
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) DeleteByChatID(ctx context.Context, chatID int64) error {
	return r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&model.Message{}).Error
}

// ReplaceForChat 用新的消息集合整体替换聊天的本地历史
// 同步远程历史时使用：先删后插在一个事务里完成，
// 中途任何失败都会回滚，之前已提交的历史原样保留
// 参数:
//   - ctx: 上下文
//   - chatID: 聊天ID
//   - messages: 新的消息集合，按给定顺序插入
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) ReplaceForChat(ctx context.Context, chatID int64, messages []model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		// 逐条插入保证自增 ID 的顺序与远程顺序一致
		for i := range messages {
			messages[i].ChatID = chatID
			if err := tx.Create(&messages[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
