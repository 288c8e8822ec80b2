package diagnose

import (
	"encoding/json"
	"strings"
)

// StripCodeFences 去掉模型输出外层的Markdown代码围栏
// 同时兼容 ```json 与裸 ``` 两种写法，非围栏文本原样返回
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// 去掉围栏后紧跟的语言标记行，如 json
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := strings.TrimSpace(text[:idx])
		if first == "" || isFenceLanguage(first) {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isFenceLanguage(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// ParseSecurityVerdict 解析内容校验输出
// 第二个返回值表示是否解析成功，失败时返回拒绝处理的默认结果（失败即关闭）
func ParseSecurityVerdict(raw string) (SecurityVerdict, bool) {
	verdict := SecurityVerdict{}
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &verdict); err != nil {
		return SecurityVerdict{
			IsPlantImage:    false,
			IsLegalPlant:    false,
			AllowProcessing: false,
			Notes:           "validator output could not be parsed",
		}, false
	}
	// 不信任模型给出的allow_processing，由两个分量重新推导
	verdict.AllowProcessing = verdict.IsPlantImage && verdict.IsLegalPlant
	return verdict, true
}

// ParsePlantInfo 解析识别阶段输出，失败或字段缺失时补默认值
func ParsePlantInfo(raw string) PlantInfo {
	info := PlantInfo{}
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &info); err != nil {
		return PlantInfo{PlantName: defaultPlantName, Condition: defaultCondition}
	}
	if strings.TrimSpace(info.PlantName) == "" {
		info.PlantName = defaultPlantName
	}
	if strings.TrimSpace(info.Condition) == "" {
		info.Condition = defaultCondition
	}
	return info
}

// ParseDiagnosisRecord 解析结构化提取阶段输出
// 缺失字段补默认值，并重排养护步骤id保证从1开始连续
func ParseDiagnosisRecord(raw string) *DiagnosisRecord {
	record := &DiagnosisRecord{}
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), record); err != nil {
		record = &DiagnosisRecord{}
	}

	if strings.TrimSpace(record.PlantName) == "" {
		record.PlantName = defaultPlantName
	}
	if strings.TrimSpace(record.Condition) == "" {
		record.Condition = defaultCondition
	}
	if strings.TrimSpace(record.DetailDiagnosis) == "" {
		record.DetailDiagnosis = defaultDiagnosis
	}
	if record.ActionPlan == nil {
		record.ActionPlan = []ActionPlanItem{}
	}
	for i := range record.ActionPlan {
		record.ActionPlan[i].ID = i + 1
	}
	return record
}

func equalsHealthy(condition string) bool {
	return strings.EqualFold(strings.TrimSpace(condition), "healthy")
}
