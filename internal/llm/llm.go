// Package llm 封装对大模型服务的访问
// 对上层暴露 Generator 接口，屏蔽具体的服务商实现
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured 大模型服务未配置（缺少 API Key）
var ErrNotConfigured = errors.New("llm service not configured (missing API key)")

// Message 发送给模型的一条消息
type Message struct {
	Role    string `json:"role"`    // system / user / assistant
	Content string `json:"content"` // 消息内容
}

// Generator 生成接口
// 输入完整的上下文消息，返回助手回复
type Generator interface {
	// Generate 生成一条完整的回复
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StreamGenerator 流式生成接口
// 每生成一段内容就调用一次 onDelta，全部结束后返回完整内容
type StreamGenerator interface {
	Generator

	// GenerateStream 流式生成回复
	// onDelta 在调用方的 goroutine 中同步执行
	GenerateStream(ctx context.Context, messages []Message, onDelta func(delta string)) (string, error)
}
