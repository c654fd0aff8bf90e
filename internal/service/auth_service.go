// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository 和 Cache
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/pkg/token"
	"github.com/rainbowchenx/ai-agent/pkg/util"
)

// 定义业务错误
var (
	ErrEmailExists          = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("incorrect email or password")
	ErrUnsupportedGrantType = errors.New("unsupported grant type, must be 'password'")
	ErrUserNotFound         = errors.New("user not found")
	ErrTokenRevoked         = errors.New("token has been revoked")
)

// ValidationError 输入校验失败
// 携带面向用户的提示信息，由 Handler 映射为 422 响应
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TokenBlacklist 令牌黑名单存储
// 生产环境由 Redis 实现，登出后的令牌在剩余有效期内被拒绝
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool
}

// AuthService 认证服务
// 处理用户注册、登录、登出和令牌验证
type AuthService struct {
	userRepo  *repository.UserRepository // 用户数据访问层
	blacklist TokenBlacklist             // 令牌黑名单
	tokens    *token.Service             // 令牌服务
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	userRepo *repository.UserRepository,
	blacklist TokenBlacklist,
	tokens *token.Service,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		blacklist: blacklist,
		tokens:    tokens,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`    // 邮箱
	Password string `json:"password" binding:"required"` // 密码
}

// RegisterResponse 注册响应
// 注册成功即视为登录，直接返回令牌
type RegisterResponse struct {
	ID    int64        `json:"id"`
	Email string       `json:"email"`
	Token *token.Token `json:"token"`
}

// Register 用户注册
// 参数:
//   - ctx: 上下文
//   - req: 注册请求
//
// 返回:
//   - *RegisterResponse: 注册成功返回用户信息和令牌
//   - error: 校验失败返回 *ValidationError，邮箱重复返回 ErrEmailExists
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	// 1. 规范化并校验邮箱
	email := util.NormalizeEmail(req.Email)
	if !util.ValidateEmail(email) {
		return nil, &ValidationError{Message: "invalid email format"}
	}

	// 2. 校验密码强度
	if msg := util.ValidatePasswordStrength(req.Password); msg != "" {
		return nil, &ValidationError{Message: msg}
	}

	// 3. 检查邮箱是否已注册
	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	// 4. 对密码进行哈希
	// 使用 bcrypt 算法，自动添加盐值
	passwordHash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// 5. 创建用户
	user := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// 6. 签发令牌，注册后无需再登录一次
	tk, err := s.tokens.IssueDefault(strconv.FormatInt(user.ID, 10))
	if err != nil {
		return nil, err
	}

	return &RegisterResponse{
		ID:    user.ID,
		Email: user.Email,
		Token: tk,
	}, nil
}

// LoginRequest 登录请求
// 对应 OAuth2 密码模式的表单字段
type LoginRequest struct {
	Username  string `form:"username" binding:"required"` // 邮箱（沿用 OAuth2 表单的字段名）
	Password  string `form:"password" binding:"required"` // 密码
	GrantType string `form:"grant_type"`                  // OAuth2 授权类型，必须为 "password"
}

// Login 用户登录
// 无论是用户不存在还是密码错误，都返回同一个错误，避免账号探测
// 参数:
//   - ctx: 上下文
//   - req: 登录请求
//
// 返回:
//   - *token.Token: 登录成功返回令牌
//   - error: 授权类型不是 password 返回 ErrUnsupportedGrantType，
//     登录失败返回 ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*token.Token, error) {
	// 1. 只支持 OAuth2 密码模式
	if req.GrantType != "password" {
		return nil, ErrUnsupportedGrantType
	}

	// 2. 根据邮箱查找用户
	email := util.NormalizeEmail(req.Username)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 验证密码
	if !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 4. 签发令牌
	return s.tokens.IssueDefault(strconv.FormatInt(user.ID, 10))
}

// Verify 验证访问令牌
// 依次检查签名、有效期和黑名单
// 参数:
//   - ctx: 上下文
//   - tokenString: JWT 字符串
//
// 返回:
//   - int64: 用户ID
//   - error: token 包的错误或 ErrTokenRevoked
func (s *AuthService) Verify(ctx context.Context, tokenString string) (int64, error) {
	userID, _, err := s.VerifyToken(ctx, tokenString)
	return userID, err
}

// VerifyToken 验证访问令牌并返回主体信息
// 供客户端主动检查令牌有效性的端点使用
// 参数:
//   - ctx: 上下文
//   - tokenString: JWT 字符串
//
// 返回:
//   - int64: 用户ID
//   - time.Time: 令牌过期时间
//   - error: token 包的错误或 ErrTokenRevoked
func (s *AuthService) VerifyToken(ctx context.Context, tokenString string) (int64, time.Time, error) {
	claims, err := s.tokens.VerifyWithClaims(tokenString)
	if err != nil {
		return 0, time.Time{}, err
	}

	// 检查黑名单（登出后的令牌立即失效）
	if s.blacklist.IsTokenBlacklisted(ctx, hashToken(tokenString)) {
		return 0, time.Time{}, ErrTokenRevoked
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, time.Time{}, token.ErrMalformedToken
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return userID, expiresAt, nil
}

// Logout 用户登出
// 将当前令牌加入黑名单，TTL 设为令牌的剩余有效期
// 参数:
//   - ctx: 上下文
//   - tokenString: JWT 字符串
//
// 返回:
//   - error: 令牌无效或 Redis 操作错误
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.tokens.VerifyWithClaims(tokenString)
	if err != nil {
		return err
	}

	var expireAt time.Time
	if claims.ExpiresAt != nil {
		expireAt = claims.ExpiresAt.Time
	}
	return s.blacklist.BlacklistToken(ctx, hashToken(tokenString), expireAt)
}

// hashToken 计算令牌的 SHA-256 哈希
// 黑名单只存哈希值，不存原始令牌
func hashToken(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// GetUser 根据 ID 获取用户
// 参数:
//   - ctx: 上下文
//   - id: 用户ID
//
// 返回:
//   - *model.User: 用户对象
//   - error: 用户不存在返回 ErrUserNotFound
func (s *AuthService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUserNotFound, id)
	}
	return user, nil
}
