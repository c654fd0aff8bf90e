// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// Session 会话模型
// 对应数据库表 sessions
// 表示用户与 AI 的一次对话，类似于聊天应用中的对话窗口
type Session struct {
	// ID 会话唯一标识，UUID 字符串主键
	// 由服务端生成，对客户端不透明
	ID string `gorm:"size:36;primaryKey" json:"id"`

	// UserID 所属用户ID，外键关联 users.id
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// Name 会话名称，允许为空字符串
	// 新建会话时默认为空，由用户后续重命名
	Name string `gorm:"size:255;not null;default:''" json:"name"`

	// CreatedAt 创建时间，会话列表按此字段倒序排列
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// UpdatedAt 更新时间，由 GORM 自动更新
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// User 所属用户（多对一关系）
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// Messages 会话中的所有消息（一对多关系）
	// 删除会话时级联删除消息
	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}
