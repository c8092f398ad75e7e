// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"coldnet-server/internal/model"
)

// ChatRepository 聊天数据访问层
// 所有按 ID 的查询都带上 ownerID 条件：所有权不匹配和记录不存在
// 对调用方是同一种结果（nil），不向非所有者泄露聊天是否存在
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建 ChatRepository 实例
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create 创建新聊天
// 参数:
//   - ctx: 上下文
//   - chat: 聊天对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// ListByOwner 获取用户的所有聊天
// 置顶的排在最前，其余按 ID 倒序（最近创建的在前）
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//
// 返回:
//   - []model.Chat: 聊天列表
//   - error: 数据库错误
func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("is_pinned DESC").
		Order("id DESC").
		Find(&chats).Error
	return chats, err
}

// GetByIDAndOwner 根据 ID 和所有者获取聊天
// 参数:
//   - ctx: 上下文
//   - id: 聊天ID
//   - ownerID: 用户ID
//
// 返回:
//   - *model.Chat: 聊天对象，不存在或不属于该用户时返回 nil
//   - error: 数据库错误
func (r *ChatRepository) GetByIDAndOwner(ctx context.Context, id, ownerID int64) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

// GetByIDAndOwnerWithMessages 根据 ID 和所有者获取聊天及其全部消息
// 消息按 ID 升序排列，即创建顺序
// 参数:
//   - ctx: 上下文
//   - id: 聊天ID
//   - ownerID: 用户ID
//
// 返回:
//   - *model.Chat: 包含 Messages 字段的聊天对象，未找到返回 nil
//   - error: 数据库错误
func (r *ChatRepository) GetByIDAndOwnerWithMessages(ctx context.Context, id, ownerID int64) (*model.Chat, error) {
	var chat model.Chat
	// Preload 预加载消息，并按 ID 排序
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC") // 按创建顺序，最早的在前
		}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

// UpdateFields 更新聊天的指定字段
// 只更新 fields 中出现的字段，其余保持不变
// 参数:
//   - ctx: 上下文
//   - id: 聊天ID
//   - fields: 要更新的字段映射，如 map[string]interface{}{"is_pinned": true}
//
// 返回:
//   - error: 数据库错误
func (r *ChatRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).Updates(fields).Error
}

// CountPinnedByOwner 统计用户置顶的聊天数量
// 用于置顶上限检查
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//
// 返回:
//   - int64: 置顶数量
//   - error: 数据库错误
func (r *ChatRepository) CountPinnedByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("owner_id = ? AND is_pinned = ?", ownerID, true).
		Count(&count).Error
	return count, err
}

// Delete 删除聊天及其全部消息
// 级联删除是显式的仓库逻辑，在一个事务里先删消息再删聊天，
// 任何一步失败整体回滚，不会留下孤儿消息
// 参数:
//   - ctx: 上下文
//   - id: 聊天ID
//
// 返回:
//   - error: 数据库错误
func (r *ChatRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Chat{}, id).Error
	})
}
