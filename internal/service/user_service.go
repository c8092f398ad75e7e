// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"time"

	"coldnet-server/internal/model"
	"coldnet-server/internal/repository"
	"coldnet-server/pkg/util"
)

// ErrInvalidBirthDate 出生日期格式错误（期望 YYYY-MM-DD）
var ErrInvalidBirthDate = errors.New("出生日期格式错误")

// UserService 用户服务
// 处理用户资料的查询和更新
type UserService struct {
	userRepo *repository.UserRepository // 用户数据访问层
}

// NewUserService 创建 UserService 实例
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// GetProfile 获取用户资料
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *model.Profile: 用户资料
//   - error: 用户不存在返回错误
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user.ToProfile(), nil
}

// UpdateProfileRequest 更新用户资料请求
// 三个字段整体替换：未提供（null）的字段会被清空
type UpdateProfileRequest struct {
	RealName       *string `json:"real_name"`       // 真实姓名
	BirthDate      *string `json:"birth_date"`      // 出生日期，YYYY-MM-DD
	ProfilePicture *string `json:"profile_picture"` // 头像，Base64 编码
}

// UpdateProfile 更新用户资料
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 更新请求
//
// 返回:
//   - *model.Profile: 更新后的用户资料
//   - error: 操作错误
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*model.Profile, error) {
	// 1. 确认用户存在
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// 2. 解析出生日期
	var birthDate *time.Time
	if req.BirthDate != nil && *req.BirthDate != "" {
		t, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, ErrInvalidBirthDate
		}
		birthDate = &t
	}

	// 3. 三个资料字段整体写入（nil 会把对应列置空）
	fields := map[string]interface{}{
		"real_name":       req.RealName,
		"birth_date":      birthDate,
		"profile_picture": req.ProfilePicture,
	}
	if err := s.userRepo.UpdateProfileFields(ctx, userID, fields); err != nil {
		return nil, err
	}

	// 4. 重新获取更新后的用户信息
	user, err = s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ToProfile(), nil
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`       // 当前密码
	NewPassword     string `json:"new_password" binding:"required,min=6"`     // 新密码
}

// ChangePassword 修改密码
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 修改密码请求
//
// 返回:
//   - error: 当前密码错误等情况返回错误
func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	// 1. 获取用户信息
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	// 2. 验证当前密码
	if !util.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrPasswordWrong
	}

	// 3. 对新密码进行哈希并更新
	newHash, err := util.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePasswordHash(ctx, userID, newHash)
}
