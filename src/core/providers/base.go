package providers

import (
	"context"
)

// Provider 所有提供者的基础接口
type Provider interface {
	Initialize() error
	Cleanup() error
}

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMProvider 大语言模型提供者接口
// 诊断流水线的每个阶段都是一次单轮请求
type LLMProvider interface {
	Provider
	Chat(ctx context.Context, messages []Message) (string, error)
}

// EmbeddingProvider 文本嵌入提供者接口
// 返回向量的维度必须与向量索引配置一致
type EmbeddingProvider interface {
	Provider
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
