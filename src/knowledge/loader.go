package knowledge

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"willow-server-go/src/core/image"
	"willow-server-go/src/core/utils"
	"willow-server-go/src/diagnose"
	"willow-server-go/src/task"
)

// 每个目录最多处理的样本数，避免一次性灌入过多数据
const maxImagesPerFolder = 10

const analysisSystemPrompt = "You are a plant pathology expert. Analyze plant images and provide detailed descriptions of symptoms and conditions."

const analysisPromptFormat = `You are analyzing a plant image with the following context:
Plant Name: %s
Condition: %s

Please provide a detailed analysis in the following format:
plant name: [Plant Name]
condition: [Condition/Disease Name]
image description: [Detailed description of what you see in the image, focusing on visual symptoms, leaf appearance, color changes, spots, patterns, etc.]

Be specific about visual characteristics and symptoms you observe.`

// Loader 从标注样本目录构建知识索引
// 目录名约定为 {植物}_{症状}，如 apple_rust_leaf
type Loader struct {
	kb      *diagnose.KnowledgeBase
	vision  diagnose.VisionModel
	taskMgr *task.TaskManager
	logger  *utils.TaggedLogger
}

// NewLoader 创建知识加载器并注册写入任务执行器
func NewLoader(kb *diagnose.KnowledgeBase, vision diagnose.VisionModel, taskMgr *task.TaskManager, logger *utils.Logger) *Loader {
	l := &Loader{
		kb:      kb,
		vision:  vision,
		taskMgr: taskMgr,
		logger:  logger.WithTag("loader"),
	}
	task.RegisterTaskExecutor(task.TaskTypeKnowledgeIngest, l.executeIngest)
	return l
}

// ExtractPlantAndCondition 从目录名解析植物名与症状
// 末尾的leaf后缀对病害名无意义，直接丢弃；含healthy的症状统一归一化
func ExtractPlantAndCondition(folderName string) (string, string) {
	parts := strings.Split(folderName, "_")
	if len(parts) < 2 {
		return "Unknown Plant", "Unknown Condition"
	}

	plantName := titleCase(parts[0])
	conditionParts := parts[1:]
	if strings.EqualFold(conditionParts[len(conditionParts)-1], "leaf") {
		conditionParts = conditionParts[:len(conditionParts)-1]
	}

	condition := titleCase(strings.Join(conditionParts, " "))
	if strings.Contains(strings.ToLower(condition), "healthy") {
		condition = "Healthy"
	}
	if condition == "" {
		condition = "Unknown Condition"
	}
	return plantName, condition
}

// DocumentID 生成确定性的文档id，相同样本重复加载时覆盖而不是重复
func DocumentID(plantName, condition, filename string) string {
	normalize := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), " ", "_")
	}
	return fmt.Sprintf("%s_%s_%s", normalize(plantName), normalize(condition), filename)
}

// LoadDirectory 遍历数据目录并提交写入任务
func (l *Loader) LoadDirectory(ctx context.Context, dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("读取数据目录失败: %v", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := l.loadFolder(ctx, dataDir, entry.Name()); err != nil {
			l.logger.Warn(fmt.Sprintf("处理目录 %s 失败: %v", entry.Name(), err))
		}
	}
	return nil
}

func (l *Loader) loadFolder(ctx context.Context, dataDir, folderName string) error {
	plantName, condition := ExtractPlantAndCondition(folderName)
	l.logger.Info(fmt.Sprintf("处理目录 %s: %s / %s", folderName, plantName, condition))

	folderPath := filepath.Join(dataDir, folderName)
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !isImageFilename(entry.Name()) {
			continue
		}
		if count >= maxImagesPerFolder {
			l.logger.Info(fmt.Sprintf("目录 %s 已达上限, 跳过剩余样本", folderName))
			break
		}

		if err := l.ingestImage(ctx, folderPath, entry.Name(), plantName, condition); err != nil {
			l.logger.Warn(fmt.Sprintf("样本 %s 处理失败: %v", entry.Name(), err))
			continue
		}
		count++
	}

	if count == 0 {
		l.logger.Warn(fmt.Sprintf("目录 %s 中没有可用样本", folderName))
	}
	return nil
}

// ingestImage 描述单张样本并提交索引写入任务
func (l *Loader) ingestImage(ctx context.Context, folderPath, filename, plantName, condition string) error {
	data, err := os.ReadFile(filepath.Join(folderPath, filename))
	if err != nil {
		return err
	}
	if !image.IsValidImageFile(data) {
		return fmt.Errorf("不是有效的图片文件")
	}

	analysis, err := l.vision.ResponseWithImage(ctx, analysisSystemPrompt, image.ImageData{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: image.DetectFormat(data),
	}, fmt.Sprintf(analysisPromptFormat, plantName, condition))
	if err != nil {
		return fmt.Errorf("图像分析失败: %v", err)
	}

	document := fmt.Sprintf("Plant Name: %s\nCondition: %s\nAnalysis: %s", plantName, condition, analysis)
	t := task.NewTask(task.TaskTypeKnowledgeIngest, map[string]interface{}{
		"id":         DocumentID(plantName, condition, filename),
		"document":   document,
		"plant_name": plantName,
		"condition":  condition,
	})
	return l.taskMgr.SubmitTask(t)
}

// executeIngest 写入任务执行器
func (l *Loader) executeIngest(t *task.Task) error {
	id, _ := t.Params["id"].(string)
	document, _ := t.Params["document"].(string)
	plantName, _ := t.Params["plant_name"].(string)
	condition, _ := t.Params["condition"].(string)
	if id == "" || document == "" {
		return fmt.Errorf("写入任务参数不完整")
	}
	return l.kb.Upsert(context.Background(), id, document, plantName, condition)
}

func isImageFilename(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// titleCase 每个单词首字母大写
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
