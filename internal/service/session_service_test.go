package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/pkg/util"
)

func newTestSessionService(t *testing.T) (*SessionService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	svc := NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
	)
	return svc, db
}

// seedSession 直接向数据库插入一条会话记录
func seedSession(t *testing.T, db *gorm.DB, userID int64, name string, createdAt time.Time) string {
	t.Helper()

	session := &model.Session{
		ID:        util.NewSessionID(),
		UserID:    userID,
		Name:      name,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(session).Error)
	return session.ID
}

func TestCreateSession(t *testing.T) {
	svc, _ := newTestSessionService(t)

	session, err := svc.CreateSession(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, session.ID, 36, "session id is a uuid string")
	assert.Empty(t, session.Name, "new session starts with an empty name")
}

func TestListSessionsNewestFirst(t *testing.T) {
	svc, db := newTestSessionService(t)
	base := time.Now().Add(-time.Hour)

	oldest := seedSession(t, db, 1, "oldest", base)
	middle := seedSession(t, db, 1, "middle", base.Add(time.Minute))
	newest := seedSession(t, db, 1, "newest", base.Add(2*time.Minute))
	seedSession(t, db, 2, "other user", base.Add(3*time.Minute))

	sessions, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, newest, sessions[0].ID)
	assert.Equal(t, middle, sessions[1].ID)
	assert.Equal(t, oldest, sessions[2].ID)
}

func TestRenameSession(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "", time.Now())

	session, err := svc.RenameSession(context.Background(), 1, sessionID, "my chat")
	require.NoError(t, err)
	assert.Equal(t, "my chat", session.Name)

	sessions, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "my chat", sessions[0].Name)
}

func TestRenameSessionTruncatesLongName(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "", time.Now())

	longName := strings.Repeat("x", 300)
	session, err := svc.RenameSession(context.Background(), 1, sessionID, longName)
	require.NoError(t, err)
	assert.Len(t, session.Name, 100)
	assert.True(t, strings.HasSuffix(session.Name, "..."))
}

func TestSessionOwnership(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "", time.Now())
	ctx := context.Background()

	// 非所有者访问返回权限错误，而不是不存在
	_, err := svc.RenameSession(ctx, 2, sessionID, "hijack")
	assert.ErrorIs(t, err, ErrNoPermission)
	assert.ErrorIs(t, svc.DeleteSession(ctx, 2, sessionID), ErrNoPermission)
	_, err = svc.GetMessages(ctx, 2, sessionID)
	assert.ErrorIs(t, err, ErrNoPermission)

	// 不存在的会话
	_, err = svc.RenameSession(ctx, 1, "missing-session", "name")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, 1, "missing-session"), ErrSessionNotFound)
}

func TestDeleteSessionCascadesMessages(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "", time.Now())
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID,
		Role:      model.MessageRoleUser,
		Content:   "hello",
	}).Error)

	require.NoError(t, svc.DeleteSession(ctx, 1, sessionID))

	var msgCount int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", sessionID).Count(&msgCount).Error)
	assert.Zero(t, msgCount, "messages are deleted with their session")

	sessions, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestGetMessagesChronological(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "", time.Now())
	base := time.Now().Add(-time.Minute)

	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, Role: model.MessageRoleUser, Content: "question", CreatedAt: base,
	}).Error)
	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, Role: model.MessageRoleAssistant, Content: "answer", CreatedAt: base.Add(time.Second),
	}).Error)

	messages, err := svc.GetMessages(context.Background(), 1, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "question", messages[0].Content)
	assert.Equal(t, "answer", messages[1].Content)
}

func TestClearMessagesKeepsSession(t *testing.T) {
	svc, db := newTestSessionService(t)
	sessionID := seedSession(t, db, 1, "keep me", time.Now())
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID, Role: model.MessageRoleUser, Content: "hello",
	}).Error)

	require.NoError(t, svc.ClearMessages(ctx, 1, sessionID))

	messages, err := svc.GetMessages(ctx, 1, sessionID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	sessions, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "clearing messages does not delete the session")
}
