package diagnose

import (
	"context"
	"fmt"

	"willow-server-go/src/core/providers/embedding"
	"willow-server-go/src/core/utils"
	"willow-server-go/src/core/vector/pinecone"
)

// Retriever 按症状标签检索参考资料
// 索引不可用时返回空结果，由调用方填充占位上下文
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) []string
}

// 向量索引协作方，生产环境为pinecone.Client
type vectorIndex interface {
	Available() bool
	Query(ctx context.Context, vector []float32, topK int) []pinecone.Match
	Upsert(ctx context.Context, id string, vector []float32, metadata pinecone.Metadata) error
	Delete(ctx context.Context, id string) error
}

// KnowledgeBase 组合嵌入模型与向量索引的知识库
type KnowledgeBase struct {
	embedder embedding.Provider
	index    vectorIndex
	logger   *utils.TaggedLogger
}

// NewKnowledgeBase 创建知识库
func NewKnowledgeBase(embedder embedding.Provider, index *pinecone.Client, logger *utils.Logger) *KnowledgeBase {
	return &KnowledgeBase{
		embedder: embedder,
		index:    index,
		logger:   logger.WithTag("knowledge"),
	}
}

// Retrieve 检索与症状最匹配的参考文档，按相关度排序
// 嵌入失败或索引不可用时返回空结果而不报错
func (kb *KnowledgeBase) Retrieve(ctx context.Context, query string, topK int) []string {
	if topK <= 0 {
		topK = 1
	}
	if !kb.index.Available() {
		return nil
	}

	vector, err := kb.embedder.Embed(ctx, query)
	if err != nil {
		kb.logger.Warn(fmt.Sprintf("查询嵌入失败: %v", err))
		return nil
	}

	matches := kb.index.Query(ctx, vector, topK)
	passages := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Metadata.Document != "" {
			passages = append(passages, match.Metadata.Document)
		}
	}
	return passages
}

// Upsert 写入一条参考文档，id相同则覆盖
func (kb *KnowledgeBase) Upsert(ctx context.Context, id, document, plantName, condition string) error {
	vector, err := kb.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("文档嵌入失败: %v", err)
	}
	return kb.index.Upsert(ctx, id, vector, pinecone.Metadata{
		Document:  document,
		PlantName: plantName,
		Condition: condition,
	})
}

// Delete 按id删除参考文档
func (kb *KnowledgeBase) Delete(ctx context.Context, id string) error {
	return kb.index.Delete(ctx, id)
}
