package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rainbowchenx/ai-agent/internal/llm"
	"github.com/rainbowchenx/ai-agent/internal/model"
)

// newTestDB 创建内存数据库并完成建表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}))
	return db
}

// memBlacklist 内存版令牌黑名单，测试用
type memBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: make(map[string]time.Time)}
}

func (b *memBlacklist) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[tokenHash] = expireAt
	return nil
}

func (b *memBlacklist) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	expireAt, ok := b.revoked[tokenHash]
	return ok && time.Now().Before(expireAt)
}

// fakeGenerator 可编程的模型生成器，测试用
type fakeGenerator struct {
	mu     sync.Mutex
	reply  string
	chunks []string
	err    error
	inputs [][]llm.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, messages []llm.Message, onDelta func(delta string)) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, messages)
	chunks := f.chunks
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	var full string
	for _, chunk := range chunks {
		onDelta(chunk)
		full += chunk
	}
	return full, nil
}
