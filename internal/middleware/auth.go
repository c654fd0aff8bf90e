// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// authFailedMessage 认证失败的统一提示
// 不暴露失败的具体环节（签名、过期还是黑名单），避免给探测者提供线索
const authFailedMessage = "invalid authentication credentials"

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token，并将用户信息存入上下文
// 参数:
//   - authService: 认证服务实例，负责令牌验证和黑名单检查
//   - logger: zap 日志实例，记录认证失败的具体原因
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Authorization 字段
		// 格式: "Bearer <token>"
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, authFailedMessage)
			c.Abort() // 终止请求处理
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, authFailedMessage)
			c.Abort()
			return
		}
		tokenString := parts[1]

		// 3. 验证 Token（签名、有效期和黑名单）
		// 失败的具体原因只进日志，响应里统一为同一条提示
		userID, err := authService.Verify(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debug("token verification failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			response.Unauthorized(c, authFailedMessage)
			c.Abort()
			return
		}

		// 4. 将用户信息存入上下文
		// 后续的 Handler 可以通过 GetUserID(c) 获取
		c.Set("user_id", userID)
		c.Set("token", tokenString) // 存储原始 Token，用于登出

		// 5. 继续处理请求
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID 的辅助函数
// 参数:
//   - c: Gin 上下文
//
// 返回:
//   - int64: 用户 ID，如果未认证返回 0
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0
	}
	return userID.(int64)
}

// GetToken 从上下文获取原始 Token 的辅助函数
func GetToken(c *gin.Context) string {
	tokenString, exists := c.Get("token")
	if !exists {
		return ""
	}
	return tokenString.(string)
}
