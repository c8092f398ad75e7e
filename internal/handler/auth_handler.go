// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"coldnet-server/internal/middleware"
	"coldnet-server/internal/service"
	"coldnet-server/pkg/response"
)

// AuthHandler 认证请求处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register 用户注册
// POST /api/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	profile, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.UserExists(c)
			return
		}
		response.InternalError(c, "注册失败")
		return
	}

	response.Created(c, profile)
}

// Token 用户名密码换取 Bearer Token
// POST /api/token
// 同时接受 JSON 和表单编码（OAuth2 password 风格）
func (h *AuthHandler) Token(c *gin.Context) {
	var req service.LoginRequest
	// ShouldBind 根据 Content-Type 自动选择 JSON 或表单绑定
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.PasswordWrong(c)
			return
		}
		response.InternalError(c, "登录失败")
		return
	}

	response.Success(c, result)
}

// Logout 用户登出
// POST /api/logout
// 把当前 Token 加入黑名单，剩余有效期内拒绝使用
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenString, exists := c.Get("token")
	if !exists {
		response.Unauthorized(c, "请先登录")
		return
	}

	// 黑名单 TTL 取 Token 的剩余有效期
	expireAt := time.Now()
	if exp, ok := c.Get("token_exp"); ok {
		if numericDate, ok := exp.(*jwt.NumericDate); ok && numericDate != nil {
			expireAt = numericDate.Time
		}
	}

	tokenHash := middleware.HashToken(tokenString.(string))
	if err := h.authService.Logout(c.Request.Context(), tokenHash, expireAt); err != nil {
		response.InternalError(c, "登出失败")
		return
	}

	response.SuccessWithMessage(c, "已登出", nil)
}
