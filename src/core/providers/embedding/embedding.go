package embedding

import (
	"fmt"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/providers"
)

// Config Embedding配置结构
type Config struct {
	Type      string
	ModelName string
	BaseURL   string
	APIKey    string
	Dimension int
}

// Provider Embedding提供者接口
type Provider interface {
	providers.EmbeddingProvider
}

// Factory Embedding工厂函数类型
type Factory func(config *Config) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册Embedding提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 创建Embedding提供者实例
func Create(name string, embConfig *configs.EmbeddingConfig) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("未知的Embedding提供者: %s", name)
	}

	config := &Config{
		Type:      embConfig.Type,
		ModelName: embConfig.ModelName,
		BaseURL:   embConfig.BaseURL,
		APIKey:    embConfig.APIKey,
		Dimension: embConfig.Dimension,
	}

	provider, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("创建Embedding提供者失败: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化Embedding提供者失败: %v", err)
	}

	return provider, nil
}
