package diagnose

import (
	"context"
	"fmt"
	"testing"

	"willow-server-go/src/core/vector/pinecone"
)

// mockEmbedder 返回固定向量
type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Initialize() error { return nil }
func (m *mockEmbedder) Cleanup() error    { return nil }
func (m *mockEmbedder) Dimension() int    { return len(m.vector) }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

// mockIndex 内存中的向量索引
type mockIndex struct {
	available bool
	matches   []pinecone.Match
	upserted  map[string]pinecone.Metadata
	deleted   []string
	queries   int
}

func (m *mockIndex) Available() bool { return m.available }

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int) []pinecone.Match {
	m.queries++
	return m.matches
}

func (m *mockIndex) Upsert(ctx context.Context, id string, vector []float32, metadata pinecone.Metadata) error {
	if m.upserted == nil {
		m.upserted = make(map[string]pinecone.Metadata)
	}
	m.upserted[id] = metadata
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newTestKnowledgeBase(t *testing.T, embedder *mockEmbedder, index *mockIndex) *KnowledgeBase {
	t.Helper()
	return &KnowledgeBase{
		embedder: embedder,
		index:    index,
		logger:   newTestLogger(t).WithTag("knowledge"),
	}
}

func TestRetrieveReturnsDocumentsInRankOrder(t *testing.T) {
	index := &mockIndex{
		available: true,
		matches: []pinecone.Match{
			{ID: "a", Score: 0.9, Metadata: pinecone.Metadata{Document: "doc one"}},
			{ID: "b", Score: 0.8, Metadata: pinecone.Metadata{Document: "doc two"}},
		},
	}
	kb := newTestKnowledgeBase(t, &mockEmbedder{vector: []float32{0.1, 0.2}}, index)

	passages := kb.Retrieve(context.Background(), "early blight", 2)
	if len(passages) != 2 || passages[0] != "doc one" || passages[1] != "doc two" {
		t.Errorf("检索结果不正确: %v", passages)
	}
}

func TestRetrieveSkipsEmptyDocuments(t *testing.T) {
	index := &mockIndex{
		available: true,
		matches: []pinecone.Match{
			{ID: "a", Metadata: pinecone.Metadata{Document: ""}},
			{ID: "b", Metadata: pinecone.Metadata{Document: "doc"}},
		},
	}
	kb := newTestKnowledgeBase(t, &mockEmbedder{vector: []float32{0.1}}, index)

	passages := kb.Retrieve(context.Background(), "rust", 2)
	if len(passages) != 1 || passages[0] != "doc" {
		t.Errorf("空文档应被跳过: %v", passages)
	}
}

func TestRetrieveUnavailableIndexReturnsEmpty(t *testing.T) {
	embedder := &mockEmbedder{vector: []float32{0.1}}
	kb := newTestKnowledgeBase(t, embedder, &mockIndex{available: false})

	passages := kb.Retrieve(context.Background(), "rust", 1)
	if len(passages) != 0 {
		t.Errorf("索引不可用时应返回空结果: %v", passages)
	}
	// 索引不可用时不应浪费嵌入调用
	if embedder.calls != 0 {
		t.Errorf("不应调用嵌入模型, 实际%d次", embedder.calls)
	}
}

func TestRetrieveEmbeddingFailureReturnsEmpty(t *testing.T) {
	embedder := &mockEmbedder{err: fmt.Errorf("provider unavailable")}
	index := &mockIndex{available: true, matches: []pinecone.Match{{ID: "a"}}}
	kb := newTestKnowledgeBase(t, embedder, index)

	passages := kb.Retrieve(context.Background(), "rust", 1)
	if len(passages) != 0 {
		t.Errorf("嵌入失败时应返回空结果: %v", passages)
	}
	if index.queries != 0 {
		t.Errorf("嵌入失败后不应查询索引, 实际%d次", index.queries)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	index := &mockIndex{available: true}
	kb := newTestKnowledgeBase(t, &mockEmbedder{vector: []float32{0.1, 0.2}}, index)

	err := kb.Upsert(context.Background(), "tomato_early_blight_img1.jpg", "Plant Name: Tomato\nCondition: Early Blight", "Tomato", "Early Blight")
	if err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	meta, ok := index.upserted["tomato_early_blight_img1.jpg"]
	if !ok {
		t.Fatal("文档未写入索引")
	}
	if meta.PlantName != "Tomato" || meta.Condition != "Early Blight" {
		t.Errorf("元数据不正确: %+v", meta)
	}
	if meta.Document == "" {
		t.Error("元数据必须携带原始文档")
	}

	if err := kb.Delete(context.Background(), "tomato_early_blight_img1.jpg"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "tomato_early_blight_img1.jpg" {
		t.Errorf("删除id不正确: %v", index.deleted)
	}
}
