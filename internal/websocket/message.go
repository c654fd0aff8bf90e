// Package websocket 提供 WebSocket 通信功能
// 实现浏览器端与服务端的实时聊天流
package websocket

import (
	"time"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypeChatSend  = "chat:send" // 发送聊天消息
	TypeHeartbeat = "heartbeat" // 心跳

	// 服务端 → 客户端
	TypeChatDelta = "chat:delta" // 回复增量内容
	TypeChatDone  = "chat:done"  // 回复结束（携带完整消息）
	TypeError     = "error"      // 错误消息
	TypePong      = "pong"       // 心跳响应
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload"`              // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 消息ID，用于追踪
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ==================== Payload 类型定义 ====================

// ChatSendPayload 发送聊天消息 Payload
type ChatSendPayload struct {
	SessionID string `json:"session_id"` // 会话ID
	Content   string `json:"content"`    // 消息内容
}

// ChatDeltaPayload 回复增量内容 Payload
type ChatDeltaPayload struct {
	SessionID string `json:"session_id"` // 会话ID
	Delta     string `json:"delta"`      // 增量内容
}

// ChatDonePayload 回复结束 Payload
type ChatDonePayload struct {
	SessionID string `json:"session_id"` // 会话ID
	MessageID int64  `json:"message_id"` // 落库后的消息ID
	Content   string `json:"content"`    // 完整回复内容
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
}
