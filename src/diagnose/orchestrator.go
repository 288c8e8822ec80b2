package diagnose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"willow-server-go/src/core/image"
	"willow-server-go/src/core/search"
	"willow-server-go/src/core/utils"
)

// 检索上下文的固定占位串
const (
	healthyContext = "The plant appears to be healthy. No specific disease context is available."
	noInfoFormat   = "no information found for '%s'"
)

// Options 流水线可选配置
type Options struct {
	// SearchTool 诊断阶段可选的外部搜索工具，为nil时不搜索
	SearchTool search.Tool
	// TopK 检索返回的参考文档数，默认1
	TopK int
	// StageTimeout 单阶段超时，为0时不限制
	StageTimeout time.Duration
}

// Orchestrator 诊断流水线驱动器
// 除视觉描述阶段外的所有失败都会收敛成合法的DiagnosisRecord
type Orchestrator struct {
	vision     VisionModel
	llm        ChatModel
	retriever  Retriever
	searchTool search.Tool

	topK         int
	stageTimeout time.Duration
	logger       *utils.TaggedLogger
}

// NewOrchestrator 创建流水线
func NewOrchestrator(vision VisionModel, llm ChatModel, retriever Retriever, opts Options, logger *utils.Logger) *Orchestrator {
	topK := opts.TopK
	if topK <= 0 {
		topK = 1
	}
	return &Orchestrator{
		vision:       vision,
		llm:          llm,
		retriever:    retriever,
		searchTool:   opts.SearchTool,
		topK:         topK,
		stageTimeout: opts.StageTimeout,
		logger:       logger.WithTag("diagnose"),
	}
}

// Diagnose 对一张植物照片执行完整诊断
// 仅视觉描述阶段的失败会返回error，其余失败路径都返回结构完整的记录
func (o *Orchestrator) Diagnose(ctx context.Context, img image.ImageData) (*DiagnosisRecord, error) {
	// 1. 图片转文字描述，唯一的致命失败路径
	description, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return describeImage(sc, o.vision, img)
	})
	if err != nil {
		return nil, fmt.Errorf("图像描述失败: %v", err)
	}
	o.logger.Debug(fmt.Sprintf("图像描述: %s", description))

	// 2. 内容校验，输出不可解析时按拒绝处理
	verdictRaw, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return validateContent(sc, o.llm, description)
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("内容校验调用失败: %v", err))
		verdictRaw = ""
	}
	verdict, parsed := ParseSecurityVerdict(verdictRaw)

	// 3. 安全闸门，拒绝时直接返回固定模板
	if !verdict.AllowProcessing {
		record := o.gateRecord(verdict, parsed)
		o.logger.Info(fmt.Sprintf("内容被拒绝: %s", record.Condition))
		return record, nil
	}

	// 4. 识别植物与症状
	infoRaw, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return identifyPlant(sc, o.llm, description)
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("植物识别调用失败: %v", err))
		infoRaw = ""
	}
	info := ParsePlantInfo(infoRaw)
	o.logger.Info(fmt.Sprintf("识别结果: %s / %s", info.PlantName, info.Condition))

	// 5. 组装检索上下文，健康植物跳过检索
	retrievalContext := o.buildContext(ctx, info)

	// 6. 生成详细诊断，可选地先咨询外部搜索
	if o.searchTool != nil {
		if extra := o.consultSearch(ctx, info); extra != "" {
			retrievalContext = retrievalContext + "\nAdditional information from web search: " + extra
		}
	}
	diagnosis, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return synthesizeDiagnosis(sc, o.llm, description, retrievalContext)
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("诊断生成调用失败: %v", err))
		return fallbackRecord(info), nil
	}

	// 7. 生成养护计划
	plan, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return planActions(sc, o.llm, diagnosis, retrievalContext, info.IsHealthy())
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("计划生成调用失败: %v", err))
		return fallbackRecord(info), nil
	}

	// 8. 润色成面向用户的叙述
	narrative, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return reviewNarrative(sc, o.llm, info, diagnosis, plan)
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("润色调用失败: %v", err))
		narrative = fmt.Sprintf("Diagnosis: %s\nAction Plan: %s", diagnosis, plan)
	}

	// 9-10. 提取结构化结果并解析，缺失字段补默认值
	recordRaw, err := o.runStage(ctx, func(sc context.Context) (string, error) {
		return extractRecord(sc, o.llm, info, narrative)
	})
	if err != nil {
		o.logger.Warn(fmt.Sprintf("结构化提取调用失败: %v", err))
		recordRaw = ""
	}
	return ParseDiagnosisRecord(recordRaw), nil
}

// gateRecord 根据校验结果选择拒绝模板
// 校验输出无法解析时不走具体分支，统一返回通用拒绝模板
func (o *Orchestrator) gateRecord(verdict SecurityVerdict, parsed bool) *DiagnosisRecord {
	switch {
	case !parsed:
		return invalidContentRecord()
	case !verdict.IsPlantImage:
		return notAPlantRecord()
	case !verdict.IsLegalPlant:
		return prohibitedPlantRecord(verdict.PlantType, verdict.Notes)
	default:
		return invalidContentRecord()
	}
}

// buildContext 生成诊断阶段使用的上下文
// 保证返回非空串，空检索结果用占位文本代替
func (o *Orchestrator) buildContext(ctx context.Context, info PlantInfo) string {
	if info.IsHealthy() {
		return healthyContext
	}

	passages := o.retriever.Retrieve(ctx, info.Condition, o.topK)
	if len(passages) == 0 {
		return fmt.Sprintf(noInfoFormat, info.Condition)
	}
	return strings.Join(passages, "\n")
}

// consultSearch 咨询外部搜索工具，失败时静默降级
func (o *Orchestrator) consultSearch(ctx context.Context, info PlantInfo) string {
	query := strings.TrimSpace(info.PlantName + " " + info.Condition)
	result, err := o.searchTool.Search(ctx, query)
	if err != nil {
		o.logger.Debug(fmt.Sprintf("外部搜索失败: %v", err))
		return ""
	}
	return result
}

// runStage 执行单个阶段，必要时套上阶段超时
func (o *Orchestrator) runStage(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if o.stageTimeout <= 0 {
		return fn(ctx)
	}
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()
	return fn(stageCtx)
}

// fallbackRecord 中途阶段失败时基于已有识别结果构造记录
func fallbackRecord(info PlantInfo) *DiagnosisRecord {
	return &DiagnosisRecord{
		PlantName:       info.PlantName,
		Condition:       info.Condition,
		DetailDiagnosis: defaultDiagnosis,
		ActionPlan:      []ActionPlanItem{},
	}
}
