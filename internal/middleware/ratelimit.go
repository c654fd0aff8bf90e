// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/config"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// RequestCounter 固定窗口请求计数器
// 生产环境由 Redis 实现
type RequestCounter interface {
	AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware 创建限流中间件
// 按客户端 IP + 路由做固定窗口计数，超过阈值返回 429
// 注册/登录等敏感路由可以在配置里单独设置更严格的规则
// 参数:
//   - counter: 请求计数器
//   - cfg: 限流配置
//   - logger: zap 日志实例
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func RateLimitMiddleware(counter RequestCounter, cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		rule := cfg.RuleFor(c.FullPath())
		if rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP() + ":" + c.FullPath()
		allowed, err := counter.AllowRequest(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			// Redis 故障时放行，只记录日志
			logger.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			response.RateLimited(c)
			c.Abort()
			return
		}

		c.Next()
	}
}
