// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/rainbowchenx/ai-agent/internal/middleware"
	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// SessionHandler 会话请求处理器
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// CreateSession 创建新会话
// @Summary 创建会话
// @Description 为当前用户创建一个新会话，名称默认为空
// @Tags 会话
// @Security Bearer
// @Produce json
// @Success 201 {object} response.Response{data=service.SessionResponse}
// @Router /api/v1/auth/session [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID := middleware.GetUserID(c)

	session, err := h.sessionService.CreateSession(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "failed to create session")
		return
	}

	response.Created(c, session)
}

// ListSessions 获取当前用户的会话列表
// @Summary 获取会话列表
// @Description 按创建时间倒序返回当前用户的所有会话
// @Tags 会话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=[]service.SessionResponse}
// @Router /api/v1/auth/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := middleware.GetUserID(c)

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "failed to list sessions")
		return
	}

	response.Success(c, gin.H{
		"sessions": sessions,
	})
}

// RenameSessionRequest 重命名会话请求
type RenameSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameSession 重命名会话
// @Summary 重命名会话
// @Description 修改指定会话的名称
// @Tags 会话
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param body body RenameSessionRequest true "新名称"
// @Success 200 {object} response.Response{data=service.SessionResponse}
// @Router /api/v1/auth/session/{id}/name [patch]
func (h *SessionHandler) RenameSession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("id")

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "name is required")
		return
	}

	session, err := h.sessionService.RenameSession(c.Request.Context(), userID, sessionID, req.Name)
	if err != nil {
		h.renderSessionError(c, err, "failed to rename session")
		return
	}

	response.Success(c, session)
}

// DeleteSession 删除会话
// @Summary 删除会话
// @Description 删除指定会话及其所有消息
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response
// @Router /api/v1/auth/session/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("id")

	if err := h.sessionService.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		h.renderSessionError(c, err, "failed to delete session")
		return
	}

	response.SuccessWithMessage(c, "session deleted", nil)
}

// GetMessages 获取会话的历史消息
// @Summary 获取历史消息
// @Description 按时间正序返回指定会话的所有消息
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response{data=[]service.MessageResponse}
// @Router /api/v1/session/{id}/messages [get]
func (h *SessionHandler) GetMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("id")

	messages, err := h.sessionService.GetMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.renderSessionError(c, err, "failed to get messages")
		return
	}

	response.Success(c, gin.H{
		"messages": messages,
	})
}

// ClearMessages 清空会话的历史消息
// @Summary 清空历史消息
// @Description 删除指定会话的所有消息，保留会话本身
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response
// @Router /api/v1/session/{id}/messages [delete]
func (h *SessionHandler) ClearMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("id")

	if err := h.sessionService.ClearMessages(c.Request.Context(), userID, sessionID); err != nil {
		h.renderSessionError(c, err, "failed to clear messages")
		return
	}

	response.SuccessWithMessage(c, "messages cleared", nil)
}

// renderSessionError 将会话服务的错误映射为 HTTP 响应
func (h *SessionHandler) renderSessionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.SessionNotFound(c)
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, "no permission to access this session")
	default:
		response.InternalError(c, fallback)
	}
}
