package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/model"
	"coldnet-server/internal/repository"
	"coldnet-server/pkg/util"
)

func newChatService(t *testing.T, fake *fakeGateway) (*ChatService, *repository.MessageRepository, int64) {
	t.Helper()
	db := newTestDB(t)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	ownerID := newTestUser(t, db, "alice")
	return NewChatService(chatRepo, messageRepo, fake), messageRepo, ownerID
}

func TestChatService_StartChat(t *testing.T) {
	fake := &fakeGateway{}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "1", chat.RemoteSessionID)
	assert.Equal(t, "AI Chat #1", chat.Title)
	assert.False(t, chat.IsPinned)

	chats, err := svc.ListChats(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestChatService_StartChatRemoteFailure(t *testing.T) {
	fake := &fakeGateway{err: errRemoteDown}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	// 远程创建失败时本地不留任何记录
	_, err := svc.StartChat(ctx, ownerID)
	require.Error(t, err)

	chats, err := svc.ListChats(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestChatService_PostMessage(t *testing.T) {
	fake := &fakeGateway{reply: "你好！"}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)

	reply, err := svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{
		UserText:    "你好",
		FinalPrompt: "[上下文] 你好",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageSenderAssistant, reply.Sender)
	assert.Equal(t, "你好！", reply.Content)

	// 发给 AI 的是完整提示词，本地保存的是用户原文
	require.Len(t, fake.postedPrompts, 1)
	assert.Equal(t, "[上下文] 你好", fake.postedPrompts[0])
	assert.Equal(t, chat.RemoteSessionID, fake.postedSessions[0])

	messages, err := msgRepo.GetByChatID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "你好", messages[0].Content)
	assert.Equal(t, "你好！", messages[1].Content)
}

func TestChatService_PostMessageRemoteFailure(t *testing.T) {
	fake := &fakeGateway{}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)

	// 远程失败时这一轮对话一条都不保存
	fake.err = errRemoteDown
	_, err = svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{
		UserText:    "你好",
		FinalPrompt: "你好",
	})
	require.Error(t, err)

	count, err := msgRepo.CountByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChatService_PostMessageEmptyReply(t *testing.T) {
	fake := &fakeGateway{reply: ""}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)

	// AI 返回空串时落一条占位回复
	reply, err := svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{
		UserText:    "你好",
		FinalPrompt: "你好",
	})
	require.NoError(t, err)
	assert.Equal(t, "No response.", reply.Content)
}

func TestChatService_PostMessageNotOwner(t *testing.T) {
	fake := &fakeGateway{reply: "hi"}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)

	// 其他用户的 ID 查不到这个聊天
	_, err = svc.PostMessage(ctx, ownerID+100, chat.ID, &PostMessageRequest{
		UserText:    "你好",
		FinalPrompt: "你好",
	})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestChatService_UpdateChatPinLimit(t *testing.T) {
	fake := &fakeGateway{}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	// 置顶到上限
	var last *model.Chat
	for i := 0; i < model.MaxPinnedChats; i++ {
		chat, err := svc.StartChat(ctx, ownerID)
		require.NoError(t, err)
		_, err = svc.UpdateChat(ctx, ownerID, chat.ID, &UpdateChatRequest{IsPinned: util.BoolPtr(true)})
		require.NoError(t, err)
		last = chat
	}

	// 第六个被拒绝，且什么都没改
	extra, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	_, err = svc.UpdateChat(ctx, ownerID, extra.ID, &UpdateChatRequest{IsPinned: util.BoolPtr(true)})
	assert.ErrorIs(t, err, ErrPinLimitReached)

	got, err := svc.GetChatWithMessages(ctx, ownerID, extra.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPinned)

	// 取消一个置顶后就能再置顶
	_, err = svc.UpdateChat(ctx, ownerID, last.ID, &UpdateChatRequest{IsPinned: util.BoolPtr(false)})
	require.NoError(t, err)
	updated, err := svc.UpdateChat(ctx, ownerID, extra.ID, &UpdateChatRequest{IsPinned: util.BoolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsPinned)
}

func TestChatService_UpdateChatRepin(t *testing.T) {
	fake := &fakeGateway{}
	svc, _, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	_, err = svc.UpdateChat(ctx, ownerID, chat.ID, &UpdateChatRequest{IsPinned: util.BoolPtr(true)})
	require.NoError(t, err)

	// 对已置顶的聊天重复置顶不触发上限检查
	updated, err := svc.UpdateChat(ctx, ownerID, chat.ID, &UpdateChatRequest{
		Title:    util.StringPtr("新标题"),
		IsPinned: util.BoolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, updated.IsPinned)
	assert.Equal(t, "新标题", updated.Title)
}

func TestChatService_DeleteChat(t *testing.T) {
	fake := &fakeGateway{reply: "hi"}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{UserText: "a", FinalPrompt: "a"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteChat(ctx, ownerID, chat.ID))

	// 聊天和消息一起消失，重复删除报不存在
	_, err = svc.GetChatWithMessages(ctx, ownerID, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
	count, err := msgRepo.CountByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = svc.DeleteChat(ctx, ownerID, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestChatService_SyncHistory(t *testing.T) {
	fake := &fakeGateway{reply: "hi"}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{UserText: "local", FinalPrompt: "local"})
	require.NoError(t, err)

	// 远程历史整体替换本地，bot 角色映射为助手
	fake.remoteHistory = []gateway.RemoteMessage{
		{Role: "user", Content: "remote 1"},
		{Role: "bot", Content: "remote 2"},
		{Role: "user", Content: "remote 3", ImageBase64: util.StringPtr("aW1n")},
	}
	require.NoError(t, svc.SyncHistory(ctx, ownerID, chat.ID))

	messages, err := msgRepo.GetByChatID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, model.MessageSenderUser, messages[0].Sender)
	assert.Equal(t, "remote 1", messages[0].Content)
	assert.Equal(t, model.MessageSenderAssistant, messages[1].Sender)
	require.NotNil(t, messages[2].ImageData)
	assert.Equal(t, "aW1n", *messages[2].ImageData)
}

func TestChatService_SyncHistoryRemoteFailureKeepsLocal(t *testing.T) {
	fake := &fakeGateway{reply: "hi"}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, ownerID, chat.ID, &PostMessageRequest{UserText: "local", FinalPrompt: "local"})
	require.NoError(t, err)

	// 远程失败时本地历史原样保留
	fake.err = errRemoteDown
	require.Error(t, svc.SyncHistory(ctx, ownerID, chat.ID))

	count, err := msgRepo.CountByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestChatService_StreamAudioReply(t *testing.T) {
	fake := &fakeGateway{}
	svc, msgRepo, ownerID := newChatService(t, fake)
	ctx := context.Background()

	chat, err := svc.StartChat(ctx, ownerID)
	require.NoError(t, err)

	stream, contentType, err := svc.StreamAudioReply(ctx, ownerID, chat.ID, []byte(`{"text":"hi"}`))
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
	assert.Equal(t, "audio/wav", contentType)

	// 流式回复不落库
	count, err := msgRepo.CountByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChatService_StreamAudioReplyNotFound(t *testing.T) {
	fake := &fakeGateway{}
	svc, _, ownerID := newChatService(t, fake)

	_, _, err := svc.StreamAudioReply(context.Background(), ownerID, 999, nil)
	assert.ErrorIs(t, err, ErrChatNotFound)
}
