package diagnose

// SecurityVerdict 内容校验结果
// allow_processing 必须等于 is_plant_image && is_legal_plant
type SecurityVerdict struct {
	IsPlantImage    bool   `json:"is_plant_image"`
	IsLegalPlant    bool   `json:"is_legal_plant"`
	PlantType       string `json:"plant_type"`
	Notes           string `json:"notes"`
	AllowProcessing bool   `json:"allow_processing"`
}

// PlantInfo 识别阶段给出的植物名与症状标签
// Condition 为 "healthy"（不区分大小写）时表示无需检索病害资料
type PlantInfo struct {
	PlantName string `json:"plant_name"`
	Condition string `json:"condition"`
}

// IsHealthy 判断症状标签是否为健康哨兵值
func (p PlantInfo) IsHealthy() bool {
	return equalsHealthy(p.Condition)
}

// ActionPlanItem 养护计划中的一个步骤
type ActionPlanItem struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
}

// DiagnosisRecord 诊断结果，同时也是所有错误路径的返回形状
// ActionPlan 的id从1开始连续递增；空计划是长度为0的数组，不是null
type DiagnosisRecord struct {
	PlantName       string           `json:"plant_name"`
	Condition       string           `json:"condition"`
	DetailDiagnosis string           `json:"detail_diagnosis"`
	ActionPlan      []ActionPlanItem `json:"action_plan"`
}

// 字段缺失时的默认值
const (
	defaultPlantName = "Unknown Plant"
	defaultCondition = "Unknown Condition"
	defaultDiagnosis = "No detailed diagnosis found."
)

// 安全闸门拒绝时使用的固定模板

func notAPlantRecord() *DiagnosisRecord {
	return &DiagnosisRecord{
		PlantName:       "Not a Plant",
		Condition:       "Invalid Image Content",
		DetailDiagnosis: "The uploaded image does not appear to contain a plant. Please upload a clear photo of a plant so it can be diagnosed.",
		ActionPlan: []ActionPlanItem{
			{ID: 1, Action: "Take a new photo that clearly shows the plant."},
			{ID: 2, Action: "Make sure the plant fills most of the frame and is in focus."},
			{ID: 3, Action: "Upload the new photo to receive a diagnosis."},
		},
	}
}

func prohibitedPlantRecord(plantType, notes string) *DiagnosisRecord {
	plantName := plantType
	if plantName == "" {
		plantName = defaultPlantName
	}
	detail := "This plant species is on the restricted list and cannot be processed."
	if notes != "" {
		detail += " " + notes
	}
	return &DiagnosisRecord{
		PlantName:       plantName,
		Condition:       "Prohibited Plant Species",
		DetailDiagnosis: detail,
		ActionPlan: []ActionPlanItem{
			{ID: 1, Action: "This service only diagnoses legal plant species."},
			{ID: 2, Action: "Remove the restricted plant from the photo."},
			{ID: 3, Action: "Upload a photo of a legal plant to receive a diagnosis."},
		},
	}
}

func invalidContentRecord() *DiagnosisRecord {
	return &DiagnosisRecord{
		PlantName:       defaultPlantName,
		Condition:       "Invalid Content",
		DetailDiagnosis: "The uploaded content could not be verified as a valid plant image.",
		ActionPlan: []ActionPlanItem{
			{ID: 1, Action: "Check that the uploaded file is a photo of a plant."},
			{ID: 2, Action: "Avoid screenshots, documents or unrelated images."},
			{ID: 3, Action: "Upload a valid plant photo to receive a diagnosis."},
		},
	}
}
