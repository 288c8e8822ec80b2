package ollama

import (
	"context"
	"fmt"
	"strings"

	"willow-server-go/src/core/providers"
	"willow-server-go/src/core/providers/llm"

	"github.com/sashabaranov/go-openai"
)

// Provider Ollama LLM提供者，走OpenAI兼容接口
type Provider struct {
	*llm.BaseProvider
	client    *openai.Client
	modelName string
	isQwen3   bool
}

// 注册提供者
func init() {
	llm.Register("ollama", NewProvider)
}

// NewProvider 创建Ollama提供者
func NewProvider(config *llm.Config) (llm.Provider, error) {
	base := llm.NewBaseProvider(config)
	provider := &Provider{
		BaseProvider: base,
		modelName:    config.ModelName,
	}

	// 检查是否是qwen3模型
	provider.isQwen3 = config.ModelName != "" && strings.HasPrefix(strings.ToLower(config.ModelName), "qwen3")

	return provider, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	config := p.Config()
	baseURL := config.BaseURL
	if baseURL == "" {
		// 尝试从url字段获取
		if url, ok := config.Extra["url"].(string); ok {
			baseURL = url
		}
	}
	if baseURL == "" {
		return fmt.Errorf("缺少Ollama基础URL配置")
	}

	// 确保URL以/v1结尾
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = baseURL + "/v1"
	}

	// Ollama不需要真正的API key，但openai客户端需要一个值
	clientConfig := openai.DefaultConfig("ollama")
	clientConfig.BaseURL = baseURL

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// Chat providers.LLMProvider接口实现
func (p *Provider) Chat(ctx context.Context, messages []providers.Message) (string, error) {
	// 如果是qwen3模型，在用户最后一条消息中添加/no_think指令
	if p.isQwen3 {
		messages = p.addNoThinkDirective(messages)
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:    p.modelName,
			Messages: chatMessages,
		},
	)
	if err != nil {
		return "", fmt.Errorf("Ollama服务响应异常: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("Ollama服务未返回任何结果")
	}

	return stripThinkBlock(resp.Choices[0].Message.Content), nil
}

// addNoThinkDirective 在最后一条用户消息后追加/no_think指令
func (p *Provider) addNoThinkDirective(messages []providers.Message) []providers.Message {
	result := make([]providers.Message, len(messages))
	copy(result, messages)

	for i := len(result) - 1; i >= 0; i-- {
		if result[i].Role == "user" {
			result[i].Content = result[i].Content + " /no_think"
			break
		}
	}

	return result
}

// stripThinkBlock 移除回复中的<think>...</think>思考段
func stripThinkBlock(content string) string {
	start := strings.Index(content, "<think>")
	if start == -1 {
		return content
	}
	end := strings.Index(content, "</think>")
	if end == -1 {
		return content
	}
	return strings.TrimSpace(content[:start] + content[end+len("</think>"):])
}
