// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
// 失败的错误种类对前端是稳定的，不随内部实现变化
const (
	CodeSuccess        = 0    // 成功
	CodeBadRequest     = 1000 // 请求参数错误
	CodeUnauthorized   = 1001 // 未授权
	CodeForbidden      = 1002 // 禁止访问
	CodeNotFound       = 1003 // 资源不存在
	CodeInternalError  = 1004 // 服务器内部错误
	CodeUserExists     = 1101 // 用户名已存在
	CodeUserNotFound   = 1102 // 用户不存在
	CodePasswordWrong  = 1103 // 密码错误
	CodeChatNotFound   = 1201 // 聊天不存在
	CodePinLimit       = 1202 // 置顶数量已达上限
	CodeAIUnavailable  = 1301 // AI 服务不可用
	CodeAIBadResponse  = 1302 // AI 服务响应异常
	CodeAudioFailed    = 1303 // 音频预处理失败
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 返回成功响应（带自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "创建成功",
		Data:    data,
	})
}

// NoContent 返回 204 无内容响应（用于删除等操作）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 返回错误响应
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - message: 错误信息
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    httpCode,
		Message: message,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeBadRequest,
		Message: message,
	})
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeNotFound,
		Message: message,
	})
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code:    CodeInternalError,
		Message: message,
	})
}

// UserExists 返回用户名已存在错误
// 对应注册时用户名冲突（409 Conflict）
func UserExists(c *gin.Context) {
	c.JSON(http.StatusConflict, Response{
		Code:    CodeUserExists,
		Message: "用户名已存在",
	})
}

// UserNotFound 返回用户不存在错误
func UserNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeUserNotFound,
		Message: "用户不存在",
	})
}

// PasswordWrong 返回密码错误
func PasswordWrong(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodePasswordWrong,
		Message: "用户名或密码错误",
	})
}

// ChatNotFound 返回聊天不存在错误
// 所有权不匹配时也返回这个，不向非所有者泄露聊天是否存在
func ChatNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeChatNotFound,
		Message: "聊天不存在",
	})
}

// PinLimitReached 返回置顶数量超限错误
func PinLimitReached(c *gin.Context) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodePinLimit,
		Message: "最多只能置顶 5 个聊天",
	})
}

// AIUnavailable 返回 AI 服务不可用错误
func AIUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Code:    CodeAIUnavailable,
		Message: "AI 服务暂时不可用",
	})
}

// AIBadResponse 返回 AI 服务响应异常错误
// AI 服务可达但响应格式不符合约定
func AIBadResponse(c *gin.Context) {
	c.JSON(http.StatusBadGateway, Response{
		Code:    CodeAIBadResponse,
		Message: "AI 服务响应异常",
	})
}

// AudioFailed 返回音频预处理失败错误
func AudioFailed(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, Response{
		Code:    CodeAudioFailed,
		Message: "音频预处理失败",
	})
}
