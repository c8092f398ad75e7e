package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/model"
)

// newTestDB 创建内存 SQLite 数据库并完成建表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// 内存库在多连接下各自独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}))
	return db
}

// newTestUser 插入一个用户并返回其 ID
func newTestUser(t *testing.T, db *gorm.DB, username string) int64 {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	return user.ID
}

// fakeGateway 测试用的 AI 网关假实现
// 记录收到的调用，按预设的返回值响应
type fakeGateway struct {
	nextSessionID  int                      // 自增的会话号
	reply          string                   // PostMessage 的固定回复
	remoteHistory  []gateway.RemoteMessage  // ListMessages 的返回值
	err            error                    // 非 nil 时所有调用都失败
	postedPrompts  []string                 // 收到的提示词
	postedSessions []string                 // 收到的会话 ID
}

func (f *fakeGateway) CreateSession(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.nextSessionID++
	return strconv.Itoa(f.nextSessionID), nil
}

func (f *fakeGateway) PostMessage(ctx context.Context, sessionID, role, content string, imageBase64 *string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.postedSessions = append(f.postedSessions, sessionID)
	f.postedPrompts = append(f.postedPrompts, content)
	return f.reply, nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, sessionID string) ([]gateway.RemoteMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.remoteHistory, nil
}

func (f *fakeGateway) StreamAudioReply(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), "audio/wav", nil
}

var errRemoteDown = errors.New("remote down")
