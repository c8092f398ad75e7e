// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository、Cache 和 AI 网关
package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"coldnet-server/internal/cache"
	"coldnet-server/internal/model"
	"coldnet-server/internal/repository"
	"coldnet-server/pkg/jwt"
	"coldnet-server/pkg/util"
)

// 定义业务错误
var (
	ErrUserExists         = errors.New("用户名已存在")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrPasswordWrong      = errors.New("当前密码错误")
)

// AuthService 认证服务
// 处理用户注册、登录、登出
type AuthService struct {
	userRepo   *repository.UserRepository // 用户数据访问层
	cache      *cache.RedisCache          // Redis 缓存（Token 黑名单），可以为 nil
	jwtService *jwt.JWTService            // JWT 服务
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	userRepo *repository.UserRepository,
	redisCache *cache.RedisCache,
	jwtService *jwt.JWTService,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		cache:      redisCache,
		jwtService: jwtService,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"` // 用户名
	Password string `json:"password" binding:"required,min=6"`        // 密码
}

// Register 用户注册
// 参数:
//   - ctx: 上下文
//   - req: 注册请求
//
// 返回:
//   - *model.Profile: 注册成功返回用户资料
//   - error: 用户名已存在等错误
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.Profile, error) {
	// 1. 检查用户名是否已存在（友好报错用的预检查）
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	// 2. 对密码进行哈希
	// 使用 bcrypt 算法，自动添加盐值
	passwordHash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// 3. 创建用户
	user := &model.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 并发注册同名用户时预检查可能双双通过，
		// 最终由唯一索引兜底，把重复键错误翻译成业务错误
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return user.ToProfile(), nil
}

// LoginRequest 登录请求
// 同时支持 JSON 和表单编码（OAuth2 password 风格）
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"` // 用户名
	Password string `json:"password" form:"password" binding:"required"` // 密码
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken string `json:"access_token"` // 访问令牌
	TokenType   string `json:"token_type"`   // 固定为 "bearer"
	ExpiresIn   int64  `json:"expires_in"`   // 过期时间（秒）
}

// Login 用户登录
// 用户不存在和密码错误返回同一个错误，不泄露用户名是否已注册
// 参数:
//   - ctx: 上下文
//   - req: 登录请求
//
// 返回:
//   - *LoginResponse: 登录成功返回 Token
//   - error: 凭据无效返回 ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// 1. 根据用户名查找用户
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. 验证密码
	if !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Access Token
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.jwtService.GetAccessExpire().Seconds()),
	}, nil
}

// Logout 用户登出
// 将 Token 加入黑名单，TTL 设为 Token 的剩余有效期
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值
//   - expireAt: Token 的过期时间
//
// 返回:
//   - error: 操作错误
func (s *AuthService) Logout(ctx context.Context, tokenHash string, expireAt time.Time) error {
	if s.cache == nil {
		// 未配置 Redis 时登出只能靠客户端丢弃 Token
		return nil
	}
	return s.cache.BlacklistToken(ctx, tokenHash, expireAt)
}
