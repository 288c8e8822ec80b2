package openai

import (
	"willow-server-go/src/core/providers/vlllm"
	"willow-server-go/src/core/utils"
)

// NewProvider 创建OpenAI VLLLM提供者实例
func NewProvider(config *vlllm.Config, logger *utils.Logger) (*vlllm.Provider, error) {
	// 直接使用基础VLLLM Provider，因为它已经复用了LLM架构
	// OpenAI类型的VLLLM只需要确保使用支持视觉的模型名称
	provider, err := vlllm.NewProvider(config, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("OpenAI VLLLM Provider创建成功 %v", map[string]interface{}{
		"model_name": config.ModelName,
		"base_url":   config.BaseURL,
	})

	return provider, nil
}

// init 注册OpenAI VLLLM提供者
func init() {
	vlllm.Register("openai", NewProvider)
}
