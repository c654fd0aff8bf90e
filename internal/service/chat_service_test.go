package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
)

func newTestChatService(t *testing.T, gen *fakeGenerator, contextWindow int) (*ChatService, *SessionService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	chatSvc := NewChatService(sessionRepo, messageRepo, gen, contextWindow, zap.NewNop())
	sessionSvc := NewSessionService(sessionRepo, messageRepo)
	return chatSvc, sessionSvc, db
}

func TestSendMessage(t *testing.T) {
	gen := &fakeGenerator{reply: "the answer is 42"}
	chatSvc, sessionSvc, db := newTestChatService(t, gen, 20)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())

	reply, err := chatSvc.SendMessage(ctx, 1, sessionID, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, model.MessageRoleAssistant, reply.Role)
	assert.Equal(t, "the answer is 42", reply.Content)

	// 历史消息按时间正序：用户提问在前，助手回复在后
	messages, err := sessionSvc.GetMessages(ctx, 1, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "what is the answer?", messages[0].Content)
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
}

func TestSendMessageKeepsPromptOnGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream timeout")}
	chatSvc, sessionSvc, db := newTestChatService(t, gen, 20)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())

	_, err := chatSvc.SendMessage(ctx, 1, sessionID, "hello?")
	assert.ErrorIs(t, err, ErrGenerationFailed)

	// 生成失败时用户消息已落库，没有配对的回复
	messages, err := sessionSvc.GetMessages(ctx, 1, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "hello?", messages[0].Content)
}

func TestSendMessageOwnership(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	chatSvc, _, db := newTestChatService(t, gen, 20)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())

	_, err := chatSvc.SendMessage(ctx, 2, sessionID, "hello")
	assert.ErrorIs(t, err, ErrNoPermission)

	_, err = chatSvc.SendMessage(ctx, 1, "missing-session", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessageEmptyContent(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	chatSvc, _, db := newTestChatService(t, gen, 20)
	sessionID := seedSession(t, db, 1, "", time.Now())

	_, err := chatSvc.SendMessage(context.Background(), 1, sessionID, "   \x00\x01  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, gen.inputs, "generator is not invoked for empty content")
}

func TestSendMessageBuildsContext(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	chatSvc, _, db := newTestChatService(t, gen, 20)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())
	base := time.Now().Add(-time.Minute)

	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, Role: model.MessageRoleUser, Content: "earlier question", CreatedAt: base,
	}).Error)
	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, Role: model.MessageRoleAssistant, Content: "earlier answer", CreatedAt: base.Add(time.Second),
	}).Error)

	_, err := chatSvc.SendMessage(ctx, 1, sessionID, "follow-up")
	require.NoError(t, err)

	require.Len(t, gen.inputs, 1)
	input := gen.inputs[0]
	// 系统提示词 + 两条历史 + 新消息
	require.Len(t, input, 4)
	assert.Equal(t, model.MessageRoleSystem, input[0].Role)
	assert.Equal(t, "earlier question", input[1].Content)
	assert.Equal(t, "earlier answer", input[2].Content)
	assert.Equal(t, "follow-up", input[3].Content)
}

func TestSendMessageContextWindowLimit(t *testing.T) {
	gen := &fakeGenerator{reply: "reply"}
	chatSvc, _, db := newTestChatService(t, gen, 2)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())
	base := time.Now().Add(-time.Minute)

	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, db.Create(&model.Message{
			SessionID: sessionID,
			Role:      model.MessageRoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	_, err := chatSvc.SendMessage(ctx, 1, sessionID, "newest")
	require.NoError(t, err)

	require.Len(t, gen.inputs, 1)
	input := gen.inputs[0]
	// 窗口为 2：系统提示词 + 最近两条（含刚插入的新消息）
	require.Len(t, input, 3)
	assert.Equal(t, model.MessageRoleSystem, input[0].Role)
	assert.Equal(t, "third", input[1].Content)
	assert.Equal(t, "newest", input[2].Content)
}

func TestSendMessageStream(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"the answer ", "is ", "42"}}
	chatSvc, sessionSvc, db := newTestChatService(t, gen, 20)
	ctx := context.Background()
	sessionID := seedSession(t, db, 1, "", time.Now())

	var deltas []string
	reply, err := chatSvc.SendMessageStream(ctx, 1, sessionID, "question", func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"the answer ", "is ", "42"}, deltas)
	assert.Equal(t, "the answer is 42", reply.Content, "full reply is persisted after the stream ends")

	messages, err := sessionSvc.GetMessages(ctx, 1, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "the answer is 42", messages[1].Content)
}
