// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/pkg/util"
)

// 会话服务相关错误
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoPermission    = errors.New("no permission to access this session")
)

// maxSessionNameLen 会话名称的最大长度，超出部分截断
const maxSessionNameLen = 100

// SessionService 会话服务
// 处理会话的创建、列表、重命名、删除和历史消息
type SessionService struct {
	sessionRepo *repository.SessionRepository // 会话数据访问层
	messageRepo *repository.MessageRepository // 消息数据访问层
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
	}
}

// SessionResponse 会话响应
type SessionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// MessageResponse 消息响应
type MessageResponse struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// CreateSession 创建新会话
// 名称默认为空字符串，由用户后续重命名
// 参数:
//   - ctx: 上下文
//   - userID: 所属用户ID
//
// 返回:
//   - *SessionResponse: 创建的会话
//   - error: 数据库错误
func (s *SessionService) CreateSession(ctx context.Context, userID int64) (*SessionResponse, error) {
	session := &model.Session{
		ID:     util.NewSessionID(),
		UserID: userID,
		Name:   "",
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

// ListSessions 获取用户的会话列表
// 按创建时间倒序排列，最新的在前
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - []SessionResponse: 会话列表（没有会话时返回空切片）
//   - error: 数据库错误
func (s *SessionService) ListSessions(ctx context.Context, userID int64) ([]SessionResponse, error) {
	sessions, err := s.sessionRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]SessionResponse, len(sessions))
	for i := range sessions {
		result[i] = *toSessionResponse(&sessions[i])
	}
	return result, nil
}

// RenameSession 重命名会话
// 参数:
//   - ctx: 上下文
//   - userID: 发起请求的用户ID
//   - sessionID: 会话ID
//   - name: 新名称
//
// 返回:
//   - *SessionResponse: 更新后的会话
//   - error: ErrSessionNotFound / ErrNoPermission / 数据库错误
func (s *SessionService) RenameSession(ctx context.Context, userID int64, sessionID, name string) (*SessionResponse, error) {
	session, err := s.getOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	// 清理控制字符并截断超长名称
	name = util.TruncateString(util.SanitizeString(name), maxSessionNameLen)
	if err := s.sessionRepo.UpdateName(ctx, sessionID, name); err != nil {
		return nil, err
	}

	session.Name = name
	return toSessionResponse(session), nil
}

// DeleteSession 删除会话及其所有消息
// 参数:
//   - ctx: 上下文
//   - userID: 发起请求的用户ID
//   - sessionID: 会话ID
//
// 返回:
//   - error: ErrSessionNotFound / ErrNoPermission / 数据库错误
func (s *SessionService) DeleteSession(ctx context.Context, userID int64, sessionID string) error {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// GetMessages 获取会话的历史消息
// 按创建时间正序排列，最早的在前
// 会话和消息在一次查询中取回，所有权检查和读取之间没有竞态窗口
// 参数:
//   - ctx: 上下文
//   - userID: 发起请求的用户ID
//   - sessionID: 会话ID
//
// 返回:
//   - []MessageResponse: 消息列表
//   - error: ErrSessionNotFound / ErrNoPermission / 数据库错误
func (s *SessionService) GetMessages(ctx context.Context, userID int64, sessionID string) ([]MessageResponse, error) {
	session, err := s.sessionRepo.GetByIDWithMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNoPermission
	}

	messages := session.Messages
	result := make([]MessageResponse, len(messages))
	for i, msg := range messages {
		result[i] = MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		}
	}
	return result, nil
}

// ClearMessages 清空会话的历史消息
// 保留会话本身，只删除消息
// 参数:
//   - ctx: 上下文
//   - userID: 发起请求的用户ID
//   - sessionID: 会话ID
//
// 返回:
//   - error: ErrSessionNotFound / ErrNoPermission / 数据库错误
func (s *SessionService) ClearMessages(ctx context.Context, userID int64, sessionID string) error {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.messageRepo.DeleteBySessionID(ctx, sessionID)
}

// getOwnedSession 获取会话并验证所有权
// 会话不存在返回 ErrSessionNotFound，不属于当前用户返回 ErrNoPermission
func (s *SessionService) getOwnedSession(ctx context.Context, userID int64, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNoPermission
	}
	return session, nil
}

// toSessionResponse 将会话模型转换为响应格式
func toSessionResponse(session *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:        session.ID,
		Name:      session.Name,
		CreatedAt: session.CreatedAt.Format(time.RFC3339),
	}
}
