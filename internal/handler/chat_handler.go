// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/middleware"
	"coldnet-server/internal/service"
	"coldnet-server/pkg/response"
)

// streamChunkSize 流式转发时每次读取的字节数
const streamChunkSize = 32 * 1024

// ChatHandler 聊天请求处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListChats 获取当前用户的聊天列表
// GET /api/chats
// 置顶的在前，其余按最近创建排序
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := middleware.GetUserID(c)

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取聊天列表失败")
		return
	}

	response.Success(c, chats)
}

// CreateChat 开始一个新聊天
// POST /api/chats
// 先在 AI 服务端创建远程会话，成功后才有本地记录
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID := middleware.GetUserID(c)

	chat, err := h.chatService.StartChat(c.Request.Context(), userID)
	if err != nil {
		h.writeGatewayError(c, err)
		return
	}

	response.Created(c, chat)
}

// GetChat 获取聊天及其全部消息
// GET /api/chats/:id
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatWithMessages(c.Request.Context(), userID, chatID)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			response.ChatNotFound(c)
			return
		}
		response.InternalError(c, "获取聊天失败")
		return
	}

	response.Success(c, chat)
}

// UpdateChat 更新聊天的标题或置顶状态
// PUT /api/chats/:id
func (h *ChatHandler) UpdateChat(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req service.UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	chat, err := h.chatService.UpdateChat(c.Request.Context(), userID, chatID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChatNotFound):
			response.ChatNotFound(c)
		case errors.Is(err, service.ErrPinLimitReached):
			response.PinLimitReached(c)
		default:
			response.InternalError(c, "更新聊天失败")
		}
		return
	}

	response.Success(c, chat)
}

// DeleteChat 删除聊天及其全部消息
// DELETE /api/chats/:id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			response.ChatNotFound(c)
			return
		}
		response.InternalError(c, "删除聊天失败")
		return
	}

	response.NoContent(c)
}

// PostMessage 发送一条消息，返回助手的回复
// POST /api/chats/:id/messages
func (h *ChatHandler) PostMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req service.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	assistantMsg, err := h.chatService.PostMessage(c.Request.Context(), userID, chatID, &req)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			response.ChatNotFound(c)
			return
		}
		h.writeGatewayError(c, err)
		return
	}

	response.Success(c, assistantMsg)
}

// SyncHistory 用远程历史整体替换本地消息
// POST /api/chats/:id/sync
func (h *ChatHandler) SyncHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	if err := h.chatService.SyncHistory(c.Request.Context(), userID, chatID); err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			response.ChatNotFound(c)
			return
		}
		h.writeGatewayError(c, err)
		return
	}

	response.NoContent(c)
}

// StreamAudioReply 代理流式语音回复
// POST /api/chats/:id/messages/stream-audio
// 上游的音频流逐块转发给客户端，不缓冲整个响应；
// 流中途上游断开时直接结束，不向客户端注入错误标记
func (h *ChatHandler) StreamAudioReply(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "请求体读取失败")
		return
	}

	stream, contentType, err := h.chatService.StreamAudioReply(c.Request.Context(), userID, chatID, payload)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			response.ChatNotFound(c)
			return
		}
		h.writeGatewayError(c, err)
		return
	}
	defer stream.Close()

	relayStream(c, stream, contentType)
}

// writeGatewayError 把网关错误映射为对应的响应
func (h *ChatHandler) writeGatewayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrUnavailable):
		response.AIUnavailable(c)
	case errors.Is(err, gateway.ErrBadResponse):
		response.AIBadResponse(c)
	default:
		response.InternalError(c, "操作失败")
	}
}

// relayStream 把上游的字节流逐块转发给客户端
// 每写一块就 flush 一次，客户端可以边收边播
func relayStream(c *gin.Context, stream io.Reader, contentType string) {
	c.Header("Content-Type", contentType)
	buf := make([]byte, streamChunkSize)
	c.Stream(func(w io.Writer) bool {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// 客户端断开，结束转发，上游连接由 defer 关闭
				return false
			}
		}
		// 上游读完或中途出错都静默结束
		return err == nil
	})
}

// parseChatID 从路径参数解析聊天 ID
// 解析失败时已经写入 400 响应，调用方直接返回即可
func parseChatID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的聊天 ID")
		return 0, false
	}
	return id, true
}
