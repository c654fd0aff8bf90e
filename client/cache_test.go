package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI 可编程的 SessionAPI 假实现
type fakeAPI struct {
	mu sync.Mutex

	sessions []Session
	messages map[string][]Message

	listErr   error
	getErr    map[string]error
	renameErr error
	deleteErr error
	getCalls  map[string]int
	deleteLog []string
	renamedTo map[string]string
}

func newFakeAPI(sessions ...Session) *fakeAPI {
	return &fakeAPI{
		sessions:  sessions,
		messages:  make(map[string][]Message),
		getErr:    make(map[string]error),
		getCalls:  make(map[string]int),
		renamedTo: make(map[string]string),
	}
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

func (f *fakeAPI) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[sessionID]++
	if err := f.getErr[sessionID]; err != nil {
		return nil, err
	}
	return f.messages[sessionID], nil
}

func (f *fakeAPI) RenameSession(ctx context.Context, sessionID, name string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return nil, f.renameErr
	}
	f.renamedTo[sessionID] = name
	return &Session{ID: sessionID, Name: name}, nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLog = append(f.deleteLog, sessionID)
	return f.deleteErr
}

func TestCacheRefresh(t *testing.T) {
	api := newFakeAPI(
		Session{ID: "s1", Name: "first"},
		Session{ID: "s2", Name: "second"},
	)
	api.messages["s1"] = []Message{
		{ID: 1, Role: "user", Content: "hello"},
		{ID: 2, Role: "assistant", Content: "hi"},
	}

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	assert.Len(t, cache.Sessions(), 2)
	assert.Equal(t, StateLoaded, cache.State("s1"))
	assert.Equal(t, StateLoaded, cache.State("s2"))
	assert.Len(t, cache.Messages("s1"), 2)
	assert.NotNil(t, cache.Messages("s2"))
	assert.Empty(t, cache.Messages("s2"))
}

func TestCacheRefreshListError(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("network down")

	cache := NewCache(api, nil)
	assert.Error(t, cache.Refresh(context.Background()))
	assert.Empty(t, cache.Sessions())
}

func TestCacheLoadFailedKeepsEmptyEntry(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	api.getErr["s1"] = errors.New("timeout")

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	assert.Equal(t, StateLoadFailed, cache.State("s1"))
	// 加载失败后消息列表项仍然存在，只是为空
	assert.NotNil(t, cache.Messages("s1"))
	assert.Empty(t, cache.Messages("s1"))
}

func TestCacheSelectLoadedDoesNotRefetch(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.Equal(t, 1, api.getCalls["s1"])

	assert.True(t, cache.Select(context.Background(), "s1"))
	assert.Equal(t, "s1", cache.ActiveID())
	assert.Equal(t, 1, api.getCalls["s1"], "loaded session should not be refetched on select")
}

func TestCacheSelectRetriesFailedLoad(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	api.getErr["s1"] = errors.New("timeout")

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.Equal(t, StateLoadFailed, cache.State("s1"))

	api.mu.Lock()
	delete(api.getErr, "s1")
	api.messages["s1"] = []Message{{ID: 1, Role: "user", Content: "hi"}}
	api.mu.Unlock()

	assert.True(t, cache.Select(context.Background(), "s1"))
	assert.Equal(t, StateLoaded, cache.State("s1"))
	assert.Len(t, cache.Messages("s1"), 1)
}

func TestCacheSelectUnknownSession(t *testing.T) {
	cache := NewCache(newFakeAPI(), nil)
	assert.False(t, cache.Select(context.Background(), "missing"))
	assert.Empty(t, cache.ActiveID())
}

func TestCacheDeleteActiveSelectsPrevious(t *testing.T) {
	api := newFakeAPI(
		Session{ID: "a"},
		Session{ID: "b"},
		Session{ID: "c"},
	)
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "b"))

	cache.Delete(context.Background(), "b")

	assert.Equal(t, "a", cache.ActiveID(), "deleting index 1 should select index 0")
	assert.Len(t, cache.Sessions(), 2)
	assert.Nil(t, cache.Messages("b"))
}

func TestCacheDeleteActiveFirstSelectsNewFirst(t *testing.T) {
	api := newFakeAPI(
		Session{ID: "a"},
		Session{ID: "b"},
	)
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "a"))

	cache.Delete(context.Background(), "a")

	assert.Equal(t, "b", cache.ActiveID())
}

func TestCacheDeleteLastSessionClearsActive(t *testing.T) {
	api := newFakeAPI(Session{ID: "only"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "only"))

	cache.Delete(context.Background(), "only")

	assert.Empty(t, cache.ActiveID())
	assert.Empty(t, cache.Sessions())
}

func TestCacheDeleteInactiveKeepsActive(t *testing.T) {
	api := newFakeAPI(
		Session{ID: "a"},
		Session{ID: "b"},
	)
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "a"))

	cache.Delete(context.Background(), "b")

	assert.Equal(t, "a", cache.ActiveID())
}

func TestCacheDeleteOptimisticOnServerError(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	api.deleteErr = errors.New("server unavailable")

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	cache.Delete(context.Background(), "s1")

	// 服务端失败不回滚本地删除
	assert.Empty(t, cache.Sessions())
}

func TestCacheDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	api.deleteErr = &APIError{Status: http.StatusNotFound, Code: 1301, Message: "session not found"}

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	cache.Delete(context.Background(), "s1")

	assert.Empty(t, cache.Sessions())
	assert.Equal(t, []string{"s1"}, api.deleteLog)
}

func TestCacheRenameOptimisticOnServerError(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1", Name: "old"})
	api.renameErr = errors.New("server unavailable")

	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	cache.Rename(context.Background(), "s1", "new name")

	// 本地名称已更新，即使服务端调用失败
	assert.Equal(t, "new name", cache.Sessions()[0].Name)
}

func TestCacheAdd(t *testing.T) {
	api := newFakeAPI(Session{ID: "old"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	cache.Add(Session{ID: "fresh", Name: ""})

	sessions := cache.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "fresh", sessions[0].ID, "new session goes to the head of the list")
	assert.Equal(t, "fresh", cache.ActiveID())
	assert.Equal(t, StateLoaded, cache.State("fresh"))
}

func TestCacheAppendMessage(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	cache.AppendMessage("s1", Message{ID: 1, Role: "user", Content: "hello"})
	cache.AppendMessage("s1", Message{ID: 2, Role: "assistant", Content: "hi"})
	cache.AppendMessage("missing", Message{ID: 3, Role: "user", Content: "dropped"})

	msgs := cache.Messages("s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Nil(t, cache.Messages("missing"))
}

func TestCacheReset(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "s1"))

	cache.Reset()

	assert.Empty(t, cache.Sessions())
	assert.Empty(t, cache.ActiveID())
	assert.Equal(t, StateUnloaded, cache.State("s1"))
}

func TestCacheRefreshClearsStaleActive(t *testing.T) {
	api := newFakeAPI(Session{ID: "s1"})
	cache := NewCache(api, nil)
	require.NoError(t, cache.Refresh(context.Background()))
	require.True(t, cache.Select(context.Background(), "s1"))

	api.mu.Lock()
	api.sessions = []Session{{ID: "s2"}}
	api.mu.Unlock()

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Empty(t, cache.ActiveID(), "active session removed on server is deselected")
}
