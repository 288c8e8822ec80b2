package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"willow-server-go/src/configs"
	"willow-server-go/src/configs/database"
	"willow-server-go/src/core/image"
	"willow-server-go/src/core/providers/embedding"
	"willow-server-go/src/core/providers/llm"
	"willow-server-go/src/core/providers/vlllm"
	"willow-server-go/src/core/search"
	"willow-server-go/src/core/storage"
	"willow-server-go/src/core/utils"
	"willow-server-go/src/core/vector/pinecone"
	"willow-server-go/src/diagnose"
	"willow-server-go/src/knowledge"
	"willow-server-go/src/task"

	// 导入所有providers以确保init函数被调用
	_ "willow-server-go/src/core/providers/embedding/openai"
	_ "willow-server-go/src/core/providers/llm/ollama"
	_ "willow-server-go/src/core/providers/llm/openai"
	_ "willow-server-go/src/core/providers/vlllm/ollama"
	_ "willow-server-go/src/core/providers/vlllm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// Deps 由配置装配出的依赖集合
type Deps struct {
	LLM       llm.Provider
	Vision    *vlllm.Provider
	Embedder  embedding.Provider
	Knowledge *diagnose.KnowledgeBase
	Storage   *storage.Client
	Validator *image.ImageSecurityValidator
}

// buildDeps 根据selected_module装配模型提供者与外部协作方
func buildDeps(config *configs.Config, logger *utils.Logger) (*Deps, error) {
	llmName := config.SelectedModule["LLM"]
	llmCfg, ok := config.LLM[llmName]
	if !ok {
		return nil, fmt.Errorf("未找到选中的LLM配置: %s", llmName)
	}
	llmProvider, err := llm.Create(llmCfg.Type, &llm.Config{
		Type:        llmCfg.Type,
		ModelName:   llmCfg.ModelName,
		BaseURL:     llmCfg.BaseURL,
		APIKey:      llmCfg.APIKey,
		Temperature: llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
		TopP:        llmCfg.TopP,
	})
	if err != nil {
		return nil, err
	}

	vlllmName := config.SelectedModule["VLLLM"]
	vlllmCfg, ok := config.VLLLM[vlllmName]
	if !ok {
		return nil, fmt.Errorf("未找到选中的VLLLM配置: %s", vlllmName)
	}
	visionProvider, err := vlllm.Create(vlllmCfg.Type, &vlllmCfg, logger)
	if err != nil {
		return nil, err
	}

	embName := config.SelectedModule["Embedding"]
	embCfg, ok := config.Embedding[embName]
	if !ok {
		return nil, fmt.Errorf("未找到选中的Embedding配置: %s", embName)
	}
	embedder, err := embedding.Create(embCfg.Type, &embCfg)
	if err != nil {
		return nil, err
	}

	// 向量索引未配置密钥时进入降级模式，检索始终返回空结果
	index := pinecone.NewClient(&config.Vector, os.Getenv("PINECONE_API_KEY"), logger)
	kb := diagnose.NewKnowledgeBase(embedder, index, logger)

	// 对象存储不可用只影响图片归档，不阻塞服务启动
	var storageClient *storage.Client
	if config.Storage.Endpoint != "" {
		storageClient, err = storage.NewClient(&config.Storage,
			os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_SECRET_KEY"), logger)
		if err != nil {
			logger.Warn(fmt.Sprintf("对象存储不可用: %v", err))
			storageClient = nil
		} else if err := storageClient.EnsureBucket(context.Background()); err != nil {
			logger.Warn(fmt.Sprintf("存储桶检查失败: %v", err))
			storageClient = nil
		}
	}

	return &Deps{
		LLM:       llmProvider,
		Vision:    visionProvider,
		Embedder:  embedder,
		Knowledge: kb,
		Storage:   storageClient,
		Validator: image.NewImageSecurityValidator(&vlllmCfg.Security),
	}, nil
}

func newOrchestrator(config *configs.Config, deps *Deps, logger *utils.Logger) *diagnose.Orchestrator {
	opts := diagnose.Options{
		TopK:         config.Vector.TopK,
		StageTimeout: config.Diagnose.StageTimeoutDuration(),
	}
	if config.Diagnose.EnableSearch {
		opts.SearchTool = search.NewDuckDuckGoTool()
	}
	return diagnose.NewOrchestrator(deps.Vision, deps.LLM, deps.Knowledge, opts, logger)
}

// corsMiddleware 允许浏览器前端跨域访问
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func StartHttpServer(config *configs.Config, deps *Deps, taskMgr *task.TaskManager, db *gorm.DB,
	logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})
	router.Use(corsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to Willow"})
	})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	orchestrator := newOrchestrator(config, deps, logger)
	server := diagnose.NewServer(config, orchestrator, deps.Validator, deps.Storage, taskMgr, db, logger)
	if err := server.Start(router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("诊断服务启动失败: %v", err))
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://0.0.0.0:%d", config.Web.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(fmt.Sprintf("HTTP服务关闭失败: %v", err))
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("HTTP 服务启动失败: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(fmt.Sprintf("服务关闭过程中出现错误: %v", err))
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

// runLoader 离线加载标注样本到知识索引
func runLoader(config *configs.Config, deps *Deps, taskMgr *task.TaskManager, dataDir string, logger *utils.Logger) error {
	loader := knowledge.NewLoader(deps.Knowledge, deps.Vision, taskMgr, logger)
	taskMgr.Start()

	if err := loader.LoadDirectory(context.Background(), dataDir); err != nil {
		taskMgr.Stop()
		return err
	}

	// 等待队列中的写入任务全部完成
	taskMgr.Stop()
	logger.Info("知识索引加载完成")
	return nil
}

func main() {
	dataDir := flag.String("load-data", "", "加载标注样本目录到知识索引后退出")
	flag.Parse()

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	// 装配模型提供者与外部协作方
	deps, err := buildDeps(config, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("装配依赖失败: %v", err))
		os.Exit(1)
	}

	taskMgr := task.NewTaskManager(task.ResourceConfig{Workers: 4, QueueSize: 128}, logger)

	// 离线加载模式
	if *dataDir != "" {
		if err := runLoader(config, deps, taskMgr, *dataDir, logger); err != nil {
			logger.Error(fmt.Sprintf("知识索引加载失败: %v", err))
			os.Exit(1)
		}
		return
	}

	// 初始化数据库连接，未配置DATABASE_URL时历史记录功能自动关闭
	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Error(fmt.Sprintf("数据库连接失败: %v", err))
		os.Exit(1)
	}
	if db != nil {
		logger.Info(fmt.Sprintf("数据库连接成功: %s", dbType))
	}

	taskMgr.Start()
	defer taskMgr.Stop()

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartHttpServer(config, deps, taskMgr, db, logger, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动 Http 服务失败: %v", err))
		os.Exit(1)
	}

	// 等待系统信号并优雅关闭
	GracefulShutdown(cancel, logger, g)
}
