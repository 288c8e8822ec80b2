package openai

import (
	"context"
	"fmt"

	"willow-server-go/src/core/providers/embedding"

	"github.com/sashabaranov/go-openai"
)

// 默认使用text-embedding-3-small，1536维
const (
	defaultModel     = string(openai.SmallEmbedding3)
	defaultDimension = 1536
)

// Provider OpenAI Embedding提供者
type Provider struct {
	config *embedding.Config
	client *openai.Client
}

// 注册提供者
func init() {
	embedding.Register("openai", NewProvider)
}

// NewProvider 创建OpenAI Embedding提供者
func NewProvider(config *embedding.Config) (embedding.Provider, error) {
	if config.ModelName == "" {
		config.ModelName = defaultModel
	}
	if config.Dimension <= 0 {
		config.Dimension = defaultDimension
	}
	return &Provider{config: config}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("missing OpenAI API key")
	}

	clientConfig := openai.DefaultConfig(p.config.APIKey)
	if p.config.BaseURL != "" {
		clientConfig.BaseURL = p.config.BaseURL
	}

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// Embed 生成文本的嵌入向量
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.config.ModelName),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI Embedding服务响应异常: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI Embedding服务未返回任何向量")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != p.config.Dimension {
		return nil, fmt.Errorf("嵌入向量维度不匹配: 期望%d, 实际%d", p.config.Dimension, len(vector))
	}

	return vector, nil
}

// Dimension 返回向量维度
func (p *Provider) Dimension() int {
	return p.config.Dimension
}
