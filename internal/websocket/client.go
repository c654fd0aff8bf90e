// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/service"
)

// Client 表示一个 WebSocket 客户端连接
// 一个连接服务一个已认证用户的聊天流
type Client struct {
	conn        *websocket.Conn      // WebSocket 连接
	send        chan []byte          // 发送消息的通道
	userID      int64                // 用户ID
	chatService *service.ChatService // 聊天服务
	logger      *zap.Logger
	closeOnce   sync.Once
}

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（1MB）
	maxMessageSize = 1024 * 1024
)

// NewClient 创建新的客户端
func NewClient(conn *websocket.Conn, userID int64, chatService *service.ChatService, logger *zap.Logger) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, 256), // 缓冲区大小
		userID:      userID,
		chatService: chatService,
		logger:      logger,
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 ReadPump
// 负责从 WebSocket 读取消息并处理
func (c *Client) ReadPump() {
	// 确保退出时清理资源
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	// 设置读取限制
	c.conn.SetReadLimit(maxMessageSize)

	// 设置读取超时
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// 设置 Pong 处理函数
	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// 循环读取消息
	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			// 检查是否是正常关闭
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		// 解析消息
		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.logger.Warn("failed to parse websocket message", zap.Error(err))
			c.sendError(http.StatusBadRequest, "invalid message format")
			continue
		}

		// 处理消息
		c.handleMessage(&msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 WritePump
// 负责从 send 通道读取消息并写入 WebSocket
func (c *Client) WritePump() {
	// 创建 Ping 定时器
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			// 设置写超时
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// send 通道已关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// 发送 Ping
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 向客户端发送消息
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// 非阻塞发送
	select {
	case c.send <- data:
		return nil
	default:
		// 如果通道已满，说明客户端处理不过来
		c.logger.Warn("client send buffer full, dropping message", zap.Int64("user_id", c.userID))
		return nil
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeHeartbeat:
		// 回复 Pong
		c.SendMessage(NewMessage(TypePong, nil))

	case TypeChatSend:
		c.handleChatSend(msg)

	default:
		c.logger.Warn("unknown websocket message type", zap.String("type", msg.Type))
		c.sendError(http.StatusBadRequest, "unknown message type: "+msg.Type)
	}
}

// handleChatSend 处理聊天消息
// 同一连接上的消息串行处理，增量内容通过 chat:delta 推送
func (c *Client) handleChatSend(msg *Message) {
	var payload ChatSendPayload
	if err := decodePayload(msg.Payload, &payload); err != nil {
		c.sendError(http.StatusBadRequest, "invalid chat payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	assistantMsg, err := c.chatService.SendMessageStream(ctx, c.userID, payload.SessionID, payload.Content, func(delta string) {
		c.SendMessage(NewMessage(TypeChatDelta, ChatDeltaPayload{
			SessionID: payload.SessionID,
			Delta:     delta,
		}))
	})
	if err != nil {
		c.sendChatError(err)
		return
	}

	c.SendMessage(NewMessage(TypeChatDone, ChatDonePayload{
		SessionID: payload.SessionID,
		MessageID: assistantMsg.ID,
		Content:   assistantMsg.Content,
	}))
}

// sendChatError 将聊天服务的错误转换为 error 消息
func (c *Client) sendChatError(err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.sendError(http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrNoPermission):
		c.sendError(http.StatusForbidden, "no permission to access this session")
	case errors.Is(err, service.ErrEmptyMessage):
		c.sendError(http.StatusUnprocessableEntity, "message content is empty")
	default:
		c.sendError(http.StatusBadGateway, "failed to generate response")
	}
}

// sendError 发送错误消息
func (c *Client) sendError(code int, message string) {
	c.SendMessage(NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

// decodePayload 将 interface{} 形式的 Payload 解析到具体结构
func decodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
