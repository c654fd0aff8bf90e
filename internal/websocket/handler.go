// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	// 读缓冲区大小
	ReadBufferSize: 1024,
	// 写缓冲区大小
	WriteBufferSize: 1024,
	// 检查来源（生产环境应该验证）
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要检查 Origin
		return true
	},
}

// Handler 处理 WebSocket 连接
type Handler struct {
	authService *service.AuthService
	chatService *service.ChatService
	logger      *zap.Logger
}

// NewHandler 创建 WebSocket Handler
func NewHandler(authService *service.AuthService, chatService *service.ChatService, logger *zap.Logger) *Handler {
	return &Handler{
		authService: authService,
		chatService: chatService,
		logger:      logger,
	}
}

// HandleChatWS 处理聊天 WebSocket 连接
// 路由: GET /ws/chat
// 参数: token (query parameter) - JWT token
// 浏览器的 WebSocket API 无法设置请求头，所以 token 放在 query 中
func (h *Handler) HandleChatWS(c *gin.Context) {
	// 从 query 参数获取 token
	tokenString := c.Query("token")
	if tokenString == "" {
		response.Unauthorized(c, "invalid authentication credentials")
		return
	}

	// 验证 token（签名、有效期和黑名单）
	// 与 HTTP 认证中间件一样不暴露失败的具体环节
	userID, err := h.authService.Verify(c.Request.Context(), tokenString)
	if err != nil {
		response.Unauthorized(c, "invalid authentication credentials")
		return
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	// 创建客户端并启动读写协程
	client := NewClient(conn, userID, h.chatService, h.logger)
	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("websocket connected", zap.Int64("user_id", userID))
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// WebSocket 路由不走认证中间件（token 在 query 中验证）
	ws := r.Group("/ws")
	{
		ws.GET("/chat", h.HandleChatWS)
	}
}
