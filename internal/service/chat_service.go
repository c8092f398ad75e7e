// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/model"
	"coldnet-server/internal/repository"
)

// 聊天相关业务错误
var (
	ErrChatNotFound    = errors.New("聊天不存在")
	ErrPinLimitReached = errors.New("置顶数量已达上限")
)

// AIGateway 聊天服务依赖的 AI 网关能力
// 由 gateway.Client 实现，测试时可以用假实现替换
type AIGateway interface {
	CreateSession(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, sessionID, role, content string, imageBase64 *string) (string, error)
	ListMessages(ctx context.Context, sessionID string) ([]gateway.RemoteMessage, error)
	StreamAudioReply(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, string, error)
}

// ChatService 聊天编排服务
// 负责本地聊天与远程 AI 会话之间的映射：一次用户操作
// 展开为一次远程调用加上至多两次本地写入
type ChatService struct {
	chatRepo    *repository.ChatRepository    // 聊天数据访问层
	messageRepo *repository.MessageRepository // 消息数据访问层
	ai          AIGateway                     // AI 网关客户端
}

// NewChatService 创建 ChatService 实例
func NewChatService(
	chatRepo *repository.ChatRepository,
	messageRepo *repository.MessageRepository,
	ai AIGateway,
) *ChatService {
	return &ChatService{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		ai:          ai,
	}
}

// StartChat 开始一个新聊天
// 先在 AI 服务端创建远程会话，成功后才创建本地记录；
// 远程失败时本地不写任何东西。反过来，远程成功后本地创建失败
// 会留下一个孤儿远程会话，这是接受的代价，不做补偿
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//
// 返回:
//   - *model.Chat: 新建的聊天
//   - error: gateway.ErrUnavailable / gateway.ErrBadResponse 或数据库错误
func (s *ChatService) StartChat(ctx context.Context, ownerID int64) (*model.Chat, error) {
	remoteID, err := s.ai.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	chat := &model.Chat{
		Title:           fmt.Sprintf("AI Chat #%s", remoteID),
		OwnerID:         ownerID,
		IsPinned:        false,
		RemoteSessionID: remoteID,
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats 获取用户的聊天列表
// 置顶的在前，其余按最近创建排序
func (s *ChatService) ListChats(ctx context.Context, ownerID int64) ([]model.Chat, error) {
	return s.chatRepo.ListByOwner(ctx, ownerID)
}

// GetChatWithMessages 获取聊天及其全部消息
// 不存在或不属于该用户时返回 ErrChatNotFound
func (s *ChatService) GetChatWithMessages(ctx context.Context, ownerID, chatID int64) (*model.Chat, error) {
	chat, err := s.chatRepo.GetByIDAndOwnerWithMessages(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// PostMessageRequest 发送消息请求
// FinalPrompt 是实际发给 AI 的完整提示词（可能附加了上下文），
// UserText 是用户输入的原文，本地只保存后者
type PostMessageRequest struct {
	UserText    string  `json:"user_text" binding:"required"`    // 用户输入原文
	FinalPrompt string  `json:"final_prompt" binding:"required"` // 发给 AI 的提示词
	ImageBase64 *string `json:"image_base64"`                    // 附带图片，可选
}

// PostMessage 发送一条消息并持久化本轮对话
// 流程:
//  1. 按 ID 和所有者解析聊天，不存在返回 ErrChatNotFound
//  2. 把 FinalPrompt 发给 AI 服务端
//  3. 远程失败时直接返回，本地什么都不写（用户这一轮不会被保存）
//  4. 远程成功后在一个事务里保存用户回合和助手回合
//
// 返回:
//   - *model.Message: 助手消息
//   - error: 业务错误、网关错误或数据库错误
func (s *ChatService) PostMessage(ctx context.Context, ownerID, chatID int64, req *PostMessageRequest) (*model.Message, error) {
	chat, err := s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	reply, err := s.ai.PostMessage(ctx, chat.RemoteSessionID, model.MessageSenderUser, req.FinalPrompt, req.ImageBase64)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		reply = "No response."
	}

	userMsg := &model.Message{
		ChatID:    chatID,
		Sender:    model.MessageSenderUser,
		Content:   req.UserText,
		ImageData: req.ImageBase64,
	}
	assistantMsg := &model.Message{
		ChatID:  chatID,
		Sender:  model.MessageSenderAssistant,
		Content: reply,
	}

	// 两条消息在一个事务里写入，不会出现只有半轮对话的状态
	if err := s.messageRepo.CreatePair(ctx, userMsg, assistantMsg); err != nil {
		return nil, err
	}
	return assistantMsg, nil
}

// UpdateChatRequest 更新聊天请求
// 只有提供的字段会被修改
type UpdateChatRequest struct {
	Title    *string `json:"title"`     // 新标题，可选
	IsPinned *bool   `json:"is_pinned"` // 置顶状态，可选
}

// UpdateChat 更新聊天的标题或置顶状态
// 把一个未置顶的聊天置顶前先检查置顶数量，
// 达到 model.MaxPinnedChats 时拒绝且不做任何修改。
// 检查和写入之间存在竞争窗口，上限是尽力而为的限制
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//   - chatID: 聊天ID
//   - req: 更新请求
//
// 返回:
//   - *model.Chat: 更新后的聊天
//   - error: ErrChatNotFound / ErrPinLimitReached 或数据库错误
func (s *ChatService) UpdateChat(ctx context.Context, ownerID, chatID int64, req *UpdateChatRequest) (*model.Chat, error) {
	chat, err := s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	// 置顶上限检查，只在未置顶 -> 置顶时需要
	if req.IsPinned != nil && *req.IsPinned && !chat.IsPinned {
		pinned, err := s.chatRepo.CountPinnedByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if pinned >= model.MaxPinnedChats {
			return nil, ErrPinLimitReached
		}
	}

	fields := make(map[string]interface{})
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.IsPinned != nil {
		fields["is_pinned"] = *req.IsPinned
	}
	if len(fields) == 0 {
		return chat, nil
	}

	if err := s.chatRepo.UpdateFields(ctx, chatID, fields); err != nil {
		return nil, err
	}
	return s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
}

// DeleteChat 删除聊天及其全部消息
// 已删除或不属于该用户时返回 ErrChatNotFound
func (s *ChatService) DeleteChat(ctx context.Context, ownerID, chatID int64) error {
	chat, err := s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}
	return s.chatRepo.Delete(ctx, chatID)
}

// SyncHistory 用远程历史整体替换本地消息
// 这是破坏性替换而不是合并：远程获取成功后，先删后插在一个
// 事务里完成；远程失败或写入中途出错都会保留原有的本地历史
// 远程角色 "user" 映射为用户消息，其余一律视为助手消息
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//   - chatID: 聊天ID
//
// 返回:
//   - error: ErrChatNotFound、网关错误或数据库错误
func (s *ChatService) SyncHistory(ctx context.Context, ownerID, chatID int64) error {
	chat, err := s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}

	remote, err := s.ai.ListMessages(ctx, chat.RemoteSessionID)
	if err != nil {
		return err
	}

	messages := make([]model.Message, 0, len(remote))
	for _, m := range remote {
		sender := model.MessageSenderAssistant
		if m.Role == "user" {
			sender = model.MessageSenderUser
		}
		messages = append(messages, model.Message{
			ChatID:    chatID,
			Sender:    sender,
			Content:   m.Content,
			ImageData: m.ImageBase64,
		})
	}

	return s.messageRepo.ReplaceForChat(ctx, chatID, messages)
}

// StreamAudioReply 代理流式语音回复
// 解析聊天后打开一条到 AI 服务端的无超时流式连接，
// 调用方负责把字节逐块转发给客户端并最终关闭流。
// 这个操作不做任何本地持久化
// 参数:
//   - ctx: 上下文
//   - ownerID: 用户ID
//   - chatID: 聊天ID
//   - payload: 原样透传给上游的 JSON 请求体
//
// 返回:
//   - io.ReadCloser: 上游响应流
//   - string: 上游的 Content-Type
//   - error: ErrChatNotFound 或网关错误
func (s *ChatService) StreamAudioReply(ctx context.Context, ownerID, chatID int64, payload []byte) (io.ReadCloser, string, error) {
	chat, err := s.chatRepo.GetByIDAndOwner(ctx, chatID, ownerID)
	if err != nil {
		return nil, "", err
	}
	if chat == nil {
		return nil, "", ErrChatNotFound
	}
	return s.ai.StreamAudioReply(ctx, chat.RemoteSessionID, payload)
}
