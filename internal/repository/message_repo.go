// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/rainbowchenx/ai-agent/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetLatestBySessionID 获取会话的最新 N 条消息
// 用于构建发送给模型的上下文
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//   - limit: 要获取的消息数量
//
// 返回:
//   - []model.Message: 消息列表（按时间正序）
//   - error: 数据库错误
func (r *MessageRepository) GetLatestBySessionID(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	var messages []model.Message

	// 子查询：先按时间倒序取最新的 N 条
	// 然后外层查询再按时间正序排列
	// 这样可以得到最新的 N 条消息，且顺序正确
	subQuery := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit)

	err := r.db.WithContext(ctx).
		Table("(?) as t", subQuery).
		Order("created_at ASC").
		Find(&messages).Error

	return messages, err
}

// DeleteBySessionID 删除会话的所有消息
// 用于清空会话历史（保留会话本身）
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Message{}).Error
}
