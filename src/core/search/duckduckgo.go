package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Tool 外部搜索工具接口
// 诊断阶段可以在生成前查询一次外部资料，调用失败不阻断流水线
type Tool interface {
	Search(ctx context.Context, query string) (string, error)
}

// DuckDuckGoTool DuckDuckGo即时应答API客户端
type DuckDuckGoTool struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGoTool 创建DuckDuckGo搜索工具
func NewDuckDuckGoTool() *DuckDuckGoTool {
	return &DuckDuckGoTool{
		baseURL:    "https://api.duckduckgo.com/",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// Search 查询即时应答，无结果时返回空字符串
func (t *DuckDuckGoTool) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("创建搜索请求失败: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("搜索请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("搜索服务返回错误: %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("解析搜索响应失败: %w", err)
	}

	if answer.AbstractText != "" {
		return answer.AbstractText, nil
	}
	if answer.Answer != "" {
		return answer.Answer, nil
	}

	// 回退到相关主题摘要，最多取3条
	var topics []string
	for _, topic := range answer.RelatedTopics {
		if text := strings.TrimSpace(topic.Text); text != "" {
			topics = append(topics, text)
		}
		if len(topics) >= 3 {
			break
		}
	}
	return strings.Join(topics, "\n"), nil
}
