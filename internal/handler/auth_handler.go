// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rainbowchenx/ai-agent/internal/middleware"
	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// AuthHandler 认证请求处理器
// 处理用户注册、登录、登出和令牌验证
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册
// @Summary 用户注册
// @Description 使用邮箱和密码注册新用户，成功后直接返回令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.RegisterRequest true "注册信息"
// @Success 200 {object} response.Response{data=service.RegisterResponse}
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	// 1. 解析请求参数
	var req service.RegisterRequest
	// ShouldBindJSON 会自动验证 binding 标签中的规则
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body: "+err.Error())
		return
	}

	// 2. 调用服务层处理注册
	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		// 根据错误类型返回不同的响应
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			response.ValidationError(c, validationErr.Message)
		case errors.Is(err, service.ErrEmailExists):
			response.UserExists(c)
		default:
			response.InternalError(c, "failed to register user")
		}
		return
	}

	// 3. 返回成功响应
	response.Success(c, result)
}

// Login 用户登录
// @Summary 用户登录
// @Description 使用邮箱和密码登录，表单字段遵循 OAuth2 密码模式
// @Tags 认证
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "邮箱"
// @Param password formData string true "密码"
// @Param grant_type formData string true "授权类型，固定为 password"
// @Success 200 {object} response.Response{data=token.Token}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, "username and password are required")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedGrantType):
			response.BadRequest(c, err.Error())
		case errors.Is(err, service.ErrInvalidCredentials):
			// 不区分"用户不存在"和"密码错误"
			response.InvalidCredentials(c)
		default:
			response.InternalError(c, "failed to login")
		}
		return
	}

	response.Success(c, result)
}

// Verify 验证当前令牌
// @Summary 验证令牌
// @Description 验证请求头中的令牌是否有效，返回用户信息
// @Tags 认证
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/auth/verify [get]
func (h *AuthHandler) Verify(c *gin.Context) {
	// 认证中间件已经完成验证，能走到这里说明令牌有效
	userID := middleware.GetUserID(c)

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Unauthorized(c, "user no longer exists")
		} else {
			response.InternalError(c, "failed to verify token")
		}
		return
	}

	response.Success(c, gin.H{
		"id":    user.ID,
		"email": user.Email,
	})
}

// VerifyTokenRequest 令牌校验请求
type VerifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyToken 校验请求体中的令牌
// 供客户端在启动时自检本地保存的令牌是否仍然有效
// 所有校验失败统一返回 401，不区分具体原因
// @Summary 校验令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body VerifyTokenRequest true "待校验的令牌"
// @Success 200 {object} response.Response
// @Router /api/v1/auth/verify [post]
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	var req VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "token is required")
		return
	}

	userID, expiresAt, err := h.authService.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}

	response.Success(c, gin.H{
		"subject":    userID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// Logout 用户登出
// @Summary 用户登出
// @Description 登出当前用户，将 Token 加入黑名单
// @Tags 认证
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	// 从上下文获取原始 Token（由认证中间件设置）
	tokenString := middleware.GetToken(c)
	if tokenString == "" {
		response.BadRequest(c, "missing token")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), tokenString); err != nil {
		response.InternalError(c, "failed to logout")
		return
	}

	response.SuccessWithMessage(c, "logged out", nil)
}
