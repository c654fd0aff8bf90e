package client

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LoadState 会话消息的加载状态
type LoadState string

const (
	// StateUnloaded 尚未发起消息加载
	StateUnloaded LoadState = "unloaded"
	// StateLoading 消息加载进行中
	StateLoading LoadState = "loading"
	// StateLoaded 消息加载成功
	StateLoaded LoadState = "loaded"
	// StateLoadFailed 消息加载失败（保留空消息列表）
	StateLoadFailed LoadState = "load_failed"
)

// SessionAPI 缓存依赖的服务端接口
type SessionAPI interface {
	ListSessions(ctx context.Context) ([]Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
	RenameSession(ctx context.Context, sessionID, name string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Cache 会话列表和消息的本地镜像。
//
// 服务端返回的会话列表是权威来源：Refresh 用服务端结果整体替换本地列表，
// 再逐个加载各会话的消息。重命名和删除是乐观更新——本地先改，
// 服务端调用失败只记录日志，等下次 Refresh 时与服务端重新对齐。
type Cache struct {
	mu     sync.RWMutex
	api    SessionAPI
	logger *zap.Logger

	sessions []Session
	states   map[string]LoadState
	messages map[string][]Message
	activeID string
}

// NewCache 创建会话缓存
func NewCache(api SessionAPI, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		api:      api,
		logger:   logger,
		states:   make(map[string]LoadState),
		messages: make(map[string][]Message),
	}
}

// Refresh 从服务端拉取会话列表并整体替换本地镜像，
// 然后依次加载每个会话的消息。列表替换必须先于消息加载完成，
// 避免为已不存在的会话加载消息。
func (c *Cache) Refresh(ctx context.Context) error {
	sessions, err := c.api.ListSessions(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sessions = sessions
	c.states = make(map[string]LoadState, len(sessions))
	c.messages = make(map[string][]Message, len(sessions))
	for _, s := range sessions {
		c.states[s.ID] = StateUnloaded
		// 保证每个会话都有消息列表项，渲染层不会遇到缺失的键
		c.messages[s.ID] = []Message{}
	}
	// 活动会话已不在列表中则取消选中
	if c.activeID != "" && c.indexOfLocked(c.activeID) < 0 {
		c.activeID = ""
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.LoadMessages(ctx, id)
	}
	return nil
}

// LoadMessages 加载单个会话的消息。成功则整体替换本地消息列表，
// 失败则标记 load_failed 并保留空列表。返回最终状态。
func (c *Cache) LoadMessages(ctx context.Context, sessionID string) LoadState {
	c.mu.Lock()
	if _, ok := c.states[sessionID]; !ok {
		c.mu.Unlock()
		return StateUnloaded
	}
	c.states[sessionID] = StateLoading
	c.mu.Unlock()

	messages, err := c.api.GetMessages(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	// 会话可能在加载期间被删除
	if _, ok := c.states[sessionID]; !ok {
		return StateUnloaded
	}
	if err != nil {
		c.logger.Warn("failed to load session messages",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		c.states[sessionID] = StateLoadFailed
		c.messages[sessionID] = []Message{}
		return StateLoadFailed
	}
	if messages == nil {
		messages = []Message{}
	}
	c.states[sessionID] = StateLoaded
	c.messages[sessionID] = messages
	return StateLoaded
}

// Select 选中一个会话。已加载的会话不会重复拉取消息，
// 未加载或加载失败的会话会重新发起加载。
func (c *Cache) Select(ctx context.Context, sessionID string) bool {
	c.mu.Lock()
	if c.indexOfLocked(sessionID) < 0 {
		c.mu.Unlock()
		return false
	}
	c.activeID = sessionID
	state := c.states[sessionID]
	c.mu.Unlock()

	if state == StateUnloaded || state == StateLoadFailed {
		c.LoadMessages(ctx, sessionID)
	}
	return true
}

// Add 把新建的会话插入列表头部（服务端列表按创建时间倒序）并选中
func (c *Cache) Add(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = append([]Session{session}, c.sessions...)
	c.states[session.ID] = StateLoaded
	c.messages[session.ID] = []Message{}
	c.activeID = session.ID
}

// Rename 乐观重命名：本地立即生效，服务端失败仅记录日志
func (c *Cache) Rename(ctx context.Context, sessionID, name string) {
	c.mu.Lock()
	idx := c.indexOfLocked(sessionID)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.sessions[idx].Name = name
	c.mu.Unlock()

	if _, err := c.api.RenameSession(ctx, sessionID, name); err != nil {
		c.logger.Warn("failed to rename session on server",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Delete 乐观删除：本地立即移除，服务端失败仅记录日志。
// 服务端返回 NotFound 视为成功（会话已不存在）。
// 删除的是当前活动会话时，优先选中它前一个位置的会话，
// 其次是新的首个会话，列表为空则清空选中。
func (c *Cache) Delete(ctx context.Context, sessionID string) {
	c.mu.Lock()
	idx := c.indexOfLocked(sessionID)
	if idx < 0 {
		c.mu.Unlock()
		return
	}

	wasActive := c.activeID == sessionID
	c.sessions = append(c.sessions[:idx], c.sessions[idx+1:]...)
	delete(c.states, sessionID)
	delete(c.messages, sessionID)

	if wasActive {
		switch {
		case len(c.sessions) == 0:
			c.activeID = ""
		case idx > 0:
			c.activeID = c.sessions[idx-1].ID
		default:
			c.activeID = c.sessions[0].ID
		}
	}
	c.mu.Unlock()

	if err := c.api.DeleteSession(ctx, sessionID); err != nil && !IsNotFound(err) {
		c.logger.Warn("failed to delete session on server",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// AppendMessage 追加一条消息到会话的本地消息列表（发送/收到回复时调用）
func (c *Cache) AppendMessage(sessionID string, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.states[sessionID]; !ok {
		return
	}
	c.messages[sessionID] = append(c.messages[sessionID], msg)
}

// Sessions 返回会话列表的副本
func (c *Cache) Sessions() []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Messages 返回会话消息的副本，会话不存在时返回 nil
func (c *Cache) Messages(sessionID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs, ok := c.messages[sessionID]
	if !ok {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// State 返回会话的加载状态
func (c *Cache) State(sessionID string) LoadState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[sessionID]
	if !ok {
		return StateUnloaded
	}
	return state
}

// ActiveID 返回当前活动会话 ID，未选中时为空字符串
func (c *Cache) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// Reset 清空全部本地状态（登出时调用）
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = nil
	c.states = make(map[string]LoadState)
	c.messages = make(map[string][]Message)
	c.activeID = ""
}

// indexOfLocked 查找会话在列表中的下标，调用方必须持有锁
func (c *Cache) indexOfLocked(sessionID string) int {
	for i, s := range c.sessions {
		if s.ID == sessionID {
			return i
		}
	}
	return -1
}
