package pinecone

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
	"willow-server-go/src/core/utils"
)

// 占位密钥，视为未配置
var placeholderKeys = map[string]bool{
	"your-pinecone-api-key":      true,
	"your_pinecone_api_key_here": true,
}

// Metadata 向量附带的元数据，必须能还原出原始文档
type Metadata struct {
	Document  string `json:"document"`
	PlantName string `json:"plant_name"`
	Condition string `json:"condition"`
}

// Match 一条检索结果
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Client Pinecone向量索引REST客户端
// 未配置密钥时进入降级模式：Query返回空结果，写操作报错
type Client struct {
	config     *configs.VectorConfig
	apiKey     string
	httpClient *http.Client
	logger     *utils.TaggedLogger
}

// NewClient 创建向量索引客户端
func NewClient(config *configs.VectorConfig, apiKey string, logger *utils.Logger) *Client {
	return &Client{
		config:     config,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.WithTag("pinecone"),
	}
}

// Available 检查索引是否可用（密钥与地址均已配置）
func (c *Client) Available() bool {
	if c.apiKey == "" || placeholderKeys[c.apiKey] {
		return false
	}
	return c.config.IndexHost != ""
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

type upsertVector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

type upsertRequest struct {
	Vectors   []upsertVector `json:"vectors"`
	Namespace string         `json:"namespace,omitempty"`
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

// Query 按向量相似度检索topK条记录
// 索引不可用或调用失败时返回空结果而不报错，保证上层始终有降级路径
func (c *Client) Query(ctx context.Context, vector []float32, topK int) []Match {
	if !c.Available() {
		c.logger.Warn("向量索引未配置，返回空检索结果")
		return nil
	}

	if topK <= 0 {
		topK = 1
	}

	reqBody := queryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       c.config.Namespace,
		IncludeMetadata: true,
		IncludeValues:   false,
	}

	var resp queryResponse
	if err := c.post(ctx, "/query", reqBody, &resp); err != nil {
		c.logger.Warn(fmt.Sprintf("向量检索失败: %v", err))
		return nil
	}

	return resp.Matches
}

// Upsert 写入或更新一条向量记录
func (c *Client) Upsert(ctx context.Context, id string, vector []float32, metadata Metadata) error {
	if !c.Available() {
		return fmt.Errorf("向量索引未配置")
	}

	if len(vector) != c.config.Dimension {
		return fmt.Errorf("向量维度不匹配: 期望%d, 实际%d", c.config.Dimension, len(vector))
	}

	reqBody := upsertRequest{
		Vectors:   []upsertVector{{ID: id, Values: vector, Metadata: metadata}},
		Namespace: c.config.Namespace,
	}

	return c.post(ctx, "/vectors/upsert", reqBody, nil)
}

// Delete 删除一条向量记录
func (c *Client) Delete(ctx context.Context, id string) error {
	if !c.Available() {
		return fmt.Errorf("向量索引未配置")
	}

	reqBody := deleteRequest{
		IDs:       []string{id},
		Namespace: c.config.Namespace,
	}

	return c.post(ctx, "/vectors/delete", reqBody, nil)
}

// post 发送JSON请求并解析响应
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("请求序列化失败: %w", err)
	}

	url := strings.TrimSuffix(c.config.IndexHost, "/") + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求发送失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("索引服务返回错误: %d %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("解析响应失败: %w", err)
		}
	}

	return nil
}
