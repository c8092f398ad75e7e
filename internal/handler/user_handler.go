// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"coldnet-server/internal/middleware"
	"coldnet-server/internal/service"
	"coldnet-server/pkg/response"
)

// UserHandler 用户资料请求处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户资料
// GET /api/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	// 用户 ID 由认证中间件写入上下文
	userID := middleware.GetUserID(c)

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.UserNotFound(c)
			return
		}
		response.InternalError(c, "获取用户信息失败")
		return
	}

	response.Success(c, profile)
}

// UpdateProfile 更新当前用户资料
// PUT /api/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	profile, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.UserNotFound(c)
		case errors.Is(err, service.ErrInvalidBirthDate):
			response.BadRequest(c, "出生日期格式错误，期望 YYYY-MM-DD")
		default:
			response.InternalError(c, "更新用户信息失败")
		}
		return
	}

	response.Success(c, profile)
}

// ChangePassword 修改密码
// PUT /api/profile/password
// 需要提供当前密码
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	err := h.userService.ChangePassword(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.UserNotFound(c)
		case errors.Is(err, service.ErrPasswordWrong):
			response.ErrorWithCode(c, 400, response.CodePasswordWrong, "当前密码错误")
		default:
			response.InternalError(c, "修改密码失败")
		}
		return
	}

	response.NoContent(c)
}
