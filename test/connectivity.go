package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/providers"
	"willow-server-go/src/core/providers/embedding"
	"willow-server-go/src/core/providers/llm"
	"willow-server-go/src/core/utils"
	"willow-server-go/src/core/vector/pinecone"

	// 导入所有providers以确保init函数被调用
	_ "willow-server-go/src/core/providers/embedding/openai"
	_ "willow-server-go/src/core/providers/llm/ollama"
	_ "willow-server-go/src/core/providers/llm/openai"
	_ "willow-server-go/src/core/providers/vlllm/ollama"
	_ "willow-server-go/src/core/providers/vlllm/openai"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("=== 连通性检查测试 ===")

	// 加载配置
	config, path, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("使用配置文件: %s", path)

	logger, err := utils.NewLogger(config)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// LLM连通性
	llmName := config.SelectedModule["LLM"]
	llmCfg := config.LLM[llmName]
	llmProvider, err := llm.Create(llmCfg.Type, &llm.Config{
		Type:      llmCfg.Type,
		ModelName: llmCfg.ModelName,
		BaseURL:   llmCfg.BaseURL,
		APIKey:    llmCfg.APIKey,
		MaxTokens: 20,
	})
	if err != nil {
		log.Fatalf("创建LLM失败: %v", err)
	}
	reply, err := llmProvider.Chat(ctx, []providers.Message{
		{Role: "user", Content: "Reply with the single word: pong"},
	})
	if err != nil {
		log.Printf("✗ LLM %s 连接失败: %v", llmName, err)
	} else {
		log.Printf("✓ LLM %s 连接正常: %s", llmName, reply)
	}

	// Embedding连通性
	embName := config.SelectedModule["Embedding"]
	embCfg := config.Embedding[embName]
	embedder, err := embedding.Create(embCfg.Type, &embCfg)
	if err != nil {
		log.Fatalf("创建Embedding失败: %v", err)
	}
	vector, err := embedder.Embed(ctx, "connectivity check")
	if err != nil {
		log.Printf("✗ Embedding %s 连接失败: %v", embName, err)
	} else {
		log.Printf("✓ Embedding %s 连接正常, 维度: %d", embName, len(vector))
	}

	// 向量索引连通性
	index := pinecone.NewClient(&config.Vector, os.Getenv("PINECONE_API_KEY"), logger)
	if !index.Available() {
		log.Println("✗ 向量索引未配置, 检索将返回空结果")
	} else if len(vector) > 0 {
		matches := index.Query(ctx, vector, 1)
		log.Printf("✓ 向量索引查询完成, 返回%d条结果", len(matches))
	}

	fmt.Println("=== 检查结束 ===")
}
