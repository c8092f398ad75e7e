package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coldnet-server/internal/gateway"
	"coldnet-server/internal/model"
	"coldnet-server/internal/repository"
	"coldnet-server/internal/service"
	"coldnet-server/pkg/jwt"
	"coldnet-server/pkg/response"
)

// fakeAI 同时实现聊天和语音两组网关接口
type fakeAI struct {
	nextSessionID int
	reply         string
	remoteHistory []gateway.RemoteMessage
	err           error
}

func (f *fakeAI) CreateSession(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.nextSessionID++
	return fmt.Sprintf("%d", f.nextSessionID), nil
}

func (f *fakeAI) PostMessage(ctx context.Context, sessionID, role, content string, imageBase64 *string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAI) ListMessages(ctx context.Context, sessionID string) ([]gateway.RemoteMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.remoteHistory, nil
}

func (f *fakeAI) StreamAudioReply(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), "audio/wav", nil
}

func (f *fakeAI) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "transcribed", nil
}

func (f *fakeAI) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader("tts-" + text)), "audio/wav", nil
}

func (f *fakeAI) DescribeImage(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "一张风景照", nil
}

// newTestRouter 组装完整的路由，数据库用内存 SQLite，不依赖 Redis
func newTestRouter(t *testing.T, ai *fakeAI) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}))

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	jwtService := jwt.NewJWTService("test-secret", time.Hour)
	authService := service.NewAuthService(userRepo, nil, jwtService)
	userService := service.NewUserService(userRepo)
	chatService := service.NewChatService(chatRepo, messageRepo, ai)
	speechService := service.NewSpeechService(ai, nil)

	router := gin.New()
	RegisterRoutes(
		router,
		jwtService,
		nil,
		NewAuthHandler(authService),
		NewUserHandler(userService),
		NewChatHandler(chatService),
		NewSpeechHandler(speechService),
	)
	return router
}

// closeNotifyRecorder 给 ResponseRecorder 补上 CloseNotify，gin 的 Stream 需要它
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

// doJSON 发送 JSON 请求，token 为空表示匿名
func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(&closeNotifyRecorder{w, make(chan bool, 1)}, req)
	return w
}

// decodeEnvelope 解析统一响应格式
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// registerAndLogin 注册并登录，返回可用的 Token
func registerAndLogin(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()

	w := doJSON(router, http.MethodPost, "/api/register", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/token", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	token, _ := data["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// createChat 创建一个聊天并返回其本地 ID
func createChat(t *testing.T, router *gin.Engine, token string) int64 {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/chats", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	return int64(resp.Data.(map[string]interface{})["id"].(float64))
}

func TestRegister_Conflict(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})

	w := doJSON(router, http.MethodPost, "/api/register", "", gin.H{
		"username": "alice", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeEnvelope(t, w)
	profile := resp.Data.(map[string]interface{})
	assert.Equal(t, "alice", profile["username"])
	// 响应里不应出现任何密码相关字段
	assert.NotContains(t, w.Body.String(), "password")

	// 重复注册返回冲突
	w = doJSON(router, http.MethodPost, "/api/register", "", gin.H{
		"username": "alice", "password": "other456",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp = decodeEnvelope(t, w)
	assert.Equal(t, response.CodeUserExists, resp.Code)

	// 原密码仍然可以登录
	w = doJSON(router, http.MethodPost, "/api/token", "", gin.H{
		"username": "alice", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})

	// 用户名太短
	w := doJSON(router, http.MethodPost, "/api/register", "", gin.H{
		"username": "ab", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 密码太短
	w = doJSON(router, http.MethodPost, "/api/register", "", gin.H{
		"username": "alice", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToken_FormLogin(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})
	registerAndLogin(t, router, "alice", "secret123")

	// OAuth2 password 风格的表单登录
	form := "username=alice&password=secret123"
	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "bearer", data["token_type"])
	assert.NotEmpty(t, data["access_token"])
}

func TestToken_BadCredentials(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})
	registerAndLogin(t, router, "alice", "secret123")

	// 密码错误和用户不存在返回同样的状态码
	w := doJSON(router, http.MethodPost, "/api/token", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/token", "", gin.H{
		"username": "nobody", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_MissingOrBadToken(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})

	w := doJSON(router, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfile_GetAndUpdate(t *testing.T) {
	router := newTestRouter(t, &fakeAI{})
	token := registerAndLogin(t, router, "alice", "secret123")

	w := doJSON(router, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	profile := resp.Data.(map[string]interface{})
	assert.Equal(t, "alice", profile["username"])
	assert.Nil(t, profile["real_name"])

	w = doJSON(router, http.MethodPut, "/api/profile", token, gin.H{
		"real_name":  "张三",
		"birth_date": "1990-05-20",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeEnvelope(t, w)
	profile = resp.Data.(map[string]interface{})
	assert.Equal(t, "张三", profile["real_name"])
	assert.Equal(t, "1990-05-20", profile["birth_date"])

	// 非法日期格式
	w = doJSON(router, http.MethodPut, "/api/profile", token, gin.H{
		"birth_date": "昨天",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_FullFlow(t *testing.T) {
	ai := &fakeAI{reply: "AI 的回复"}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	// 创建聊天
	w := doJSON(router, http.MethodPost, "/api/chats", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	chat := resp.Data.(map[string]interface{})
	chatID := int64(chat["id"].(float64))
	assert.Equal(t, "AI Chat #1", chat["title"])

	// 发送消息
	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), token, gin.H{
		"user_text":    "你好",
		"final_prompt": "你好",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeEnvelope(t, w)
	reply := resp.Data.(map[string]interface{})
	assert.Equal(t, "assistant", reply["sender"])
	assert.Equal(t, "AI 的回复", reply["content"])

	// 详情里带两条消息
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeEnvelope(t, w)
	detail := resp.Data.(map[string]interface{})
	messages := detail["messages"].([]interface{})
	assert.Len(t, messages, 2)

	// 删除后再访问返回 404
	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/api/chats/%d", chatID), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_CreateUpstreamDown(t *testing.T) {
	ai := &fakeAI{err: gateway.ErrUnavailable}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	w := doJSON(router, http.MethodPost, "/api/chats", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// 本地不留聊天记录
	w = doJSON(router, http.MethodGet, "/api/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	ai.err = nil
	w = doJSON(router, http.MethodGet, "/api/chats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Empty(t, resp.Data)
}

func TestChat_OwnershipIsolation(t *testing.T) {
	ai := &fakeAI{reply: "hi"}
	router := newTestRouter(t, ai)
	aliceToken := registerAndLogin(t, router, "alice", "secret123")
	bobToken := registerAndLogin(t, router, "bob", "secret456")

	chatID := createChat(t, router, aliceToken)

	// 其他用户访问同一个聊天得到 404，与不存在无法区分
	paths := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), nil},
		{http.MethodPut, fmt.Sprintf("/api/chats/%d", chatID), gin.H{"title": "hijack"}},
		{http.MethodDelete, fmt.Sprintf("/api/chats/%d", chatID), nil},
		{http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), gin.H{"user_text": "a", "final_prompt": "a"}},
		{http.MethodPost, fmt.Sprintf("/api/chats/%d/sync", chatID), nil},
	}
	for _, p := range paths {
		w := doJSON(router, p.method, p.path, bobToken, p.body)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", p.method, p.path)
	}

	// 所有者不受影响
	w := doJSON(router, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChat_PinLimit(t *testing.T) {
	ai := &fakeAI{}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	var chatIDs []int64
	for i := 0; i < model.MaxPinnedChats+1; i++ {
		chatIDs = append(chatIDs, createChat(t, router, token))
	}

	for _, id := range chatIDs[:model.MaxPinnedChats] {
		w := doJSON(router, http.MethodPut, fmt.Sprintf("/api/chats/%d", id), token, gin.H{"is_pinned": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// 超过上限被拒绝
	w := doJSON(router, http.MethodPut, fmt.Sprintf("/api/chats/%d", chatIDs[model.MaxPinnedChats]), token, gin.H{"is_pinned": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodePinLimit, resp.Code)
}

func TestChat_SyncHistory(t *testing.T) {
	ai := &fakeAI{reply: "hi"}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	chatID := createChat(t, router, token)

	ai.remoteHistory = []gateway.RemoteMessage{
		{Role: "user", Content: "remote question"},
		{Role: "bot", Content: "remote answer"},
	}
	w := doJSON(router, http.MethodPost, fmt.Sprintf("/api/chats/%d/sync", chatID), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	messages := resp.Data.(map[string]interface{})["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	second := messages[1].(map[string]interface{})
	assert.Equal(t, "user", first["sender"])
	assert.Equal(t, "assistant", second["sender"])
}

func TestChat_StreamAudioReply(t *testing.T) {
	ai := &fakeAI{}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	chatID := createChat(t, router, token)

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages/stream-audio", chatID), token, gin.H{"text": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "audio-bytes", w.Body.String())
}

func TestSpeech_Synthesize(t *testing.T) {
	ai := &fakeAI{}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	w := doJSON(router, http.MethodPost, "/api/tts/synthesize", token, gin.H{"text": "你好"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "tts-你好", w.Body.String())

	// 缺少文本时校验失败
	w = doJSON(router, http.MethodPost, "/api/tts/synthesize", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpeech_DescribeImage(t *testing.T) {
	ai := &fakeAI{}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/describe-image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "一张风景照", data["description"])

	// 没带文件时报错
	w = doJSON(router, http.MethodPost, "/api/describe-image", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpeech_SynthesizeUpstreamDown(t *testing.T) {
	ai := &fakeAI{err: gateway.ErrUnavailable}
	router := newTestRouter(t, ai)
	token := registerAndLogin(t, router, "alice", "secret123")

	w := doJSON(router, http.MethodPost, "/api/tts/synthesize", token, gin.H{"text": "你好"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
