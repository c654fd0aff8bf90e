// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/llm"
	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/pkg/util"
)

// 聊天服务相关错误
var (
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrGenerationFailed = errors.New("failed to generate response")
)

// systemPrompt 默认的系统提示词
const systemPrompt = "You are a helpful assistant. Answer the user's questions clearly and concisely."

// ChatService 聊天服务
// 处理消息的持久化和模型回复的生成
type ChatService struct {
	sessionRepo   *repository.SessionRepository
	messageRepo   *repository.MessageRepository
	generator     llm.StreamGenerator
	contextWindow int // 发送给模型的历史消息条数上限
	logger        *zap.Logger
}

// NewChatService 创建 ChatService 实例
func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	generator llm.StreamGenerator,
	contextWindow int,
	logger *zap.Logger,
) *ChatService {
	if contextWindow <= 0 {
		contextWindow = 20
	}
	return &ChatService{
		sessionRepo:   sessionRepo,
		messageRepo:   messageRepo,
		generator:     generator,
		contextWindow: contextWindow,
		logger:        logger,
	}
}

// ChatResponse 聊天响应
type ChatResponse struct {
	Message MessageResponse `json:"message"` // 助手回复
}

// SendMessage 发送消息并生成回复
// 用户消息在调用模型之前先落库，生成失败时也会保留
// 参数:
//   - ctx: 上下文
//   - userID: 发起请求的用户ID
//   - sessionID: 会话ID
//   - content: 消息内容
//
// 返回:
//   - *model.Message: 助手回复消息
//   - error: ErrSessionNotFound / ErrNoPermission / ErrEmptyMessage / ErrGenerationFailed
func (s *ChatService) SendMessage(ctx context.Context, userID int64, sessionID, content string) (*model.Message, error) {
	return s.sendMessage(ctx, userID, sessionID, content, nil)
}

// SendMessageStream 发送消息并流式生成回复
// 每生成一段增量内容就调用一次 onDelta
// 完整回复在流结束后落库
func (s *ChatService) SendMessageStream(ctx context.Context, userID int64, sessionID, content string, onDelta func(delta string)) (*model.Message, error) {
	return s.sendMessage(ctx, userID, sessionID, content, onDelta)
}

// sendMessage 发送消息的公共实现
// onDelta 为 nil 时走非流式生成
func (s *ChatService) sendMessage(ctx context.Context, userID int64, sessionID, content string, onDelta func(delta string)) (*model.Message, error) {
	content = util.SanitizeString(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	// 1. 验证会话所有权
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

	// 2. 先持久化用户消息
	// 即使后续生成失败，用户消息也保留在历史中
	userMsg := &model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleUser,
		Content:   content,
	}
	if err := s.messageRepo.Create(ctx, userMsg); err != nil {
		return nil, err
	}

	// 3. 构建发送给模型的上下文
	// 取最近 N 条消息（含刚插入的用户消息），按时间正序
	history, err := s.messageRepo.GetLatestBySessionID(ctx, sessionID, s.contextWindow)
	if err != nil {
		return nil, err
	}
	messages := buildContext(history)

	// 4. 调用模型生成回复
	var reply string
	if onDelta != nil {
		reply, err = s.generator.GenerateStream(ctx, messages, onDelta)
	} else {
		reply, err = s.generator.Generate(ctx, messages)
	}
	if err != nil {
		s.logger.Error("llm generation failed",
			zap.String("session_id", sessionID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// 5. 持久化助手回复
	assistantMsg := &model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleAssistant,
		Content:   reply,
	}
	if err := s.messageRepo.Create(ctx, assistantMsg); err != nil {
		return nil, err
	}

	return assistantMsg, nil
}

// buildContext 将历史消息转换为模型的输入格式
// 系统提示词放在最前面
func buildContext(history []model.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    model.MessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return messages
}
