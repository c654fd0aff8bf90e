// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rainbowchenx/ai-agent/internal/middleware"
	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// ChatHandler 聊天请求处理器
// 处理同步聊天和 SSE 流式聊天
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// ChatRequest 聊天请求
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"` // 会话ID
	Content   string `json:"content" binding:"required"`    // 消息内容
}

// Chat 发送消息并等待完整回复
// @Summary 发送消息
// @Description 向指定会话发送消息，同步返回完整的助手回复
// @Tags 聊天
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body ChatRequest true "消息"
// @Success 200 {object} response.Response{data=service.MessageResponse}
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "session_id and content are required")
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), userID, req.SessionID, req.Content)
	if err != nil {
		h.renderChatError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": msg,
	})
}

// streamChunk SSE 流中的单个数据块
type streamChunk struct {
	Content string `json:"content"` // 增量内容
	Done    bool   `json:"done"`    // 是否为最后一块
}

// ChatStream 发送消息并流式返回回复
// 以 SSE 格式逐块推送增量内容，最后一条消息 done 为 true
// @Summary 流式发送消息
// @Description 向指定会话发送消息，以 Server-Sent Events 流式返回回复
// @Tags 聊天
// @Security Bearer
// @Accept json
// @Produce text/event-stream
// @Param body body ChatRequest true "消息"
// @Router /api/v1/chat/stream [post]
func (h *ChatHandler) ChatStream(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "session_id and content are required")
		return
	}

	// SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // 禁用 Nginx 缓冲

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.InternalError(c, "streaming not supported")
		return
	}

	// 每收到一段增量就写一个 SSE 事件
	_, err := h.chatService.SendMessageStream(c.Request.Context(), userID, req.SessionID, req.Content, func(delta string) {
		writeSSE(c, streamChunk{Content: delta})
		flusher.Flush()
	})
	if err != nil {
		// 出错时也通过 SSE 通知客户端，此时响应头已经发出
		writeSSEError(c, err)
		flusher.Flush()
		return
	}

	// 结束标记
	writeSSE(c, streamChunk{Content: "", Done: true})
	flusher.Flush()
}

// writeSSE 写一个 data 事件
func writeSSE(c *gin.Context, chunk streamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: " + string(data) + "\n\n")
}

// writeSSEError 写一个错误事件
func writeSSEError(c *gin.Context, err error) {
	msg := "failed to generate response"
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		msg = "session not found"
	case errors.Is(err, service.ErrNoPermission):
		msg = "no permission to access this session"
	case errors.Is(err, service.ErrEmptyMessage):
		msg = "message content is empty"
	}
	data, _ := json.Marshal(gin.H{"error": msg, "done": true})
	c.Writer.WriteString("data: " + string(data) + "\n\n")
}

// renderChatError 将聊天服务的错误映射为 HTTP 响应
func (h *ChatHandler) renderChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.SessionNotFound(c)
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, "no permission to access this session")
	case errors.Is(err, service.ErrEmptyMessage):
		response.ValidationError(c, "message content is empty")
	case errors.Is(err, service.ErrGenerationFailed):
		response.GenerationFailed(c)
	default:
		response.InternalError(c, "failed to process message")
	}
}
