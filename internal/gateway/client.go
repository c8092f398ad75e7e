// Package gateway 封装对上游 AI 推理服务的 HTTP 调用
// AI 服务端是一个黑盒：会话的创建、历史和推理全部由它管理，
// 本服务只通过这里定义的客户端与它通信
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// 定义错误类型
// 连接失败/超时与"可达但响应不符合约定"是两类不同的失败，
// 上层据此映射为 503 和 502
var (
	ErrUnavailable = errors.New("ai service unavailable")   // 连不上或超时
	ErrBadResponse = errors.New("ai service bad response")  // 响应状态或格式异常
)

// RemoteMessage AI 服务端返回的历史消息
// 对应 GET /chats/{id}/messages/ 的数组元素
type RemoteMessage struct {
	Role        string  `json:"role"`                   // user / assistant / bot 等
	Content     string  `json:"content"`                // 消息文本
	ImageBase64 *string `json:"image_base64,omitempty"` // 附带图片，可选
}

// Client AI 服务客户端
// 无状态，可以被多个请求并发使用
type Client struct {
	baseURL string

	// client 用于普通请求，带超时
	client *http.Client

	// streamClient 用于流式请求，不设超时
	// 流的持续时间由内容长度和生成速度决定，无法预估
	streamClient *http.Client
}

// NewClient 创建 AI 服务客户端
// 参数:
//   - baseURL: AI 服务端地址，如 http://127.0.0.1:8000
//   - timeout: 普通请求的超时时间
//
// 返回:
//   - *Client: 客户端实例
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{}, // Timeout 为零值，不限时
	}
}

// CreateSession 在 AI 服务端创建一个新会话
// 对应 POST /chats/
// 返回:
//   - string: 远程会话 ID
//   - error: ErrUnavailable 或 ErrBadResponse
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	body, err := c.postJSON(ctx, "/chats/", nil)
	if err != nil {
		return "", err
	}

	// id 字段可能是数字也可能是字符串，作为不透明标识处理
	var result struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	id := rawToString(result.ID)
	if id == "" {
		return "", fmt.Errorf("%w: missing session id", ErrBadResponse)
	}
	return id, nil
}

// PostMessage 向远程会话发送一条消息，返回助手的回复文本
// 对应 POST /chats/{id}/messages/
// 参数:
//   - ctx: 上下文
//   - sessionID: 远程会话 ID
//   - role: 消息角色，通常是 "user"
//   - content: 发送给 AI 的完整提示词
//   - imageBase64: 附带图片，可选
//
// 返回:
//   - string: 助手回复文本
//   - error: ErrUnavailable 或 ErrBadResponse
func (c *Client) PostMessage(ctx context.Context, sessionID, role, content string, imageBase64 *string) (string, error) {
	payload := map[string]interface{}{
		"role":         role,
		"content":      content,
		"image_base64": imageBase64,
	}

	body, err := c.postJSON(ctx, "/chats/"+sessionID+"/messages/", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return result.Content, nil
}

// ListMessages 获取远程会话的完整历史
// 对应 GET /chats/{id}/messages/，用于同步本地历史
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chats/"+sessionID+"/messages/", nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var messages []RemoteMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return messages, nil
}

// Transcribe 将 16kHz 单声道 WAV 音频发送给 STT 接口
// 对应 POST /stt/transcribe（multipart 上传）
// 音频应当已经由 audio 包归一化
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	body, err := c.postFile(ctx, "/stt/transcribe", "file", "audio.wav", "audio/wav", wav)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return result.Text, nil
}

// DescribeImage 请求 AI 服务端描述一张图片
// 对应 POST /describe-image/（multipart 上传）
func (c *Client) DescribeImage(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	body, err := c.postFile(ctx, "/describe-image/", "file", filename, contentType, data)
	if err != nil {
		return "", err
	}

	var result struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return result.Description, nil
}

// Synthesize 请求语音合成，以流的形式返回音频
// 对应 POST /tts/synthesize
// 调用方负责关闭返回的 Body；音频边生成边转发，不在内存中缓冲整个结果
// 返回:
//   - io.ReadCloser: 音频字节流
//   - string: 上游的 Content-Type
//   - error: ErrUnavailable 或 ErrBadResponse
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doStream(req)
}

// StreamAudioReply 代理流式语音回复
// 对应 POST /chats/{id}/messages/stream-audio
// 请求体原样透传给上游，响应流逐块返回给调用方
func (c *Client) StreamAudioReply(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, string, error) {
	url := c.baseURL + "/chats/" + sessionID + "/messages/stream-audio"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doStream(req)
}

// postJSON 发送 JSON 请求并读取完整响应体
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// postFile 以 multipart 形式上传一个文件并读取完整响应体
func (c *Client) postFile(ctx context.Context, path, field, filename, contentType string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// 手工构造 part 头以便携带文件的 Content-Type
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// do 执行普通请求，统一做错误分类
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		// 连接失败、DNS 失败、超时等
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
	return body, nil
}

// doStream 执行流式请求，成功时把响应体直接交给调用方
func (c *Client) doStream(req *http.Request) (io.ReadCloser, string, error) {
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body, contentType, nil
}

// rawToString 把可能是数字或字符串的 JSON 值转为字符串
func rawToString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return ""
		}
		return v
	}
	return s
}
