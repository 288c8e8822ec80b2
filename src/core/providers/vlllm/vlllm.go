package vlllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/image"
	"willow-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Config VLLLM配置结构
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Security    configs.SecurityConfig
}

// Provider VLLLM提供者，直接处理多模态API
type Provider struct {
	config    *Config
	validator *image.ImageSecurityValidator
	logger    *utils.Logger

	// 直接的API客户端
	openaiClient *openai.Client // 用于OpenAI类型
	httpClient   *http.Client   // 用于Ollama类型
}

// OllamaRequest Ollama API请求结构
type OllamaRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaMessage Ollama消息结构
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// OllamaResponse Ollama API响应结构
type OllamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewProvider 创建新的VLLLM提供者
func NewProvider(config *Config, logger *utils.Logger) (*Provider, error) {
	provider := &Provider{
		config:     config,
		validator:  image.NewImageSecurityValidator(&config.Security),
		logger:     logger,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	return provider, nil
}

// Initialize 初始化Provider
func (p *Provider) Initialize() error {
	// 根据类型初始化对应的客户端
	switch strings.ToLower(p.config.Type) {
	case "openai":
		if p.config.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}

		clientConfig := openai.DefaultConfig(p.config.APIKey)
		if p.config.BaseURL != "" {
			clientConfig.BaseURL = p.config.BaseURL
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case "ollama":
		// Ollama不需要API key，只需要确保有BaseURL
		if p.config.BaseURL == "" {
			p.config.BaseURL = "http://localhost:11434" // 默认Ollama地址
		}

	default:
		return fmt.Errorf("不支持的VLLLM类型: %s", p.config.Type)
	}

	p.logger.Debug("VLLLM Provider初始化成功 %v", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
	})

	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// ResponseWithImage 处理包含图片的请求 - 核心方法
// systemPrompt 为空时不附加system消息
func (p *Provider) ResponseWithImage(ctx context.Context, systemPrompt string, imageData image.ImageData, text string) (string, error) {
	// 安全验证
	validationResult := p.validator.ValidateImageData(imageData)
	if !validationResult.IsValid {
		return "", fmt.Errorf("图片验证失败: %v", validationResult.Error)
	}

	p.logger.Debug("开始调用多模态API %v", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
		"format":     validationResult.Format,
		"file_size":  validationResult.FileSize,
	})

	// 根据类型调用对应的多模态API
	switch strings.ToLower(p.config.Type) {
	case "openai":
		return p.responseWithOpenAIVision(ctx, systemPrompt, imageData.Data, text, validationResult.Format)
	case "ollama":
		return p.responseWithOllamaVision(ctx, systemPrompt, imageData.Data, text)
	default:
		return "", fmt.Errorf("不支持的VLLLM类型: %s", p.config.Type)
	}
}

// responseWithOpenAIVision 使用OpenAI Vision API
func (p *Provider) responseWithOpenAIVision(ctx context.Context, systemPrompt string, base64Image string, text string, format string) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	// 构建包含图片的多模态消息
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: text,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:image/%s;base64,%s", format, base64Image),
				},
			},
		},
	})

	req := openai.ChatCompletionRequest{
		Model:    p.config.ModelName,
		Messages: chatMessages,
	}
	if p.config.MaxTokens > 0 {
		req.MaxTokens = p.config.MaxTokens
	}
	if p.config.Temperature > 0 {
		req.Temperature = float32(p.config.Temperature)
	}
	if p.config.TopP > 0 {
		req.TopP = float32(p.config.TopP)
	}

	resp, err := p.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.Error("OpenAI Vision API调用失败 %v", err)
		return "", fmt.Errorf("VLLLM服务响应异常: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("VLLLM服务未返回任何结果")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// responseWithOllamaVision 使用Ollama Vision API
func (p *Provider) responseWithOllamaVision(ctx context.Context, systemPrompt string, base64Image string, text string) (string, error) {
	ollamaMessages := make([]OllamaMessage, 0, 2)
	if systemPrompt != "" {
		ollamaMessages = append(ollamaMessages, OllamaMessage{
			Role:    "system",
			Content: systemPrompt,
		})
	}

	// 添加包含图片的用户消息
	ollamaMessages = append(ollamaMessages, OllamaMessage{
		Role:    "user",
		Content: text,
		Images:  []string{base64Image}, // Ollama需要纯base64，不需要data URL前缀
	})

	request := OllamaRequest{
		Model:    p.config.ModelName,
		Messages: ollamaMessages,
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": p.config.Temperature,
			"top_p":       p.config.TopP,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("Ollama API调用失败 %v", err)
		return "", fmt.Errorf("Ollama API调用失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Ollama API返回错误: %d %s", resp.StatusCode, string(body))
	}

	var response OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("解析Ollama响应失败: %w", err)
	}

	return strings.TrimSpace(response.Message.Content), nil
}

// GetConfig 获取配置信息
func (p *Provider) GetConfig() *Config {
	return p.config
}
