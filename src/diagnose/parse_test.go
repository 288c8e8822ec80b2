package diagnose

import (
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json围栏",
			input:    "```json\n{\"a\": 1}\n```",
			expected: "{\"a\": 1}",
		},
		{
			name:     "裸围栏",
			input:    "```\n{\"a\": 1}\n```",
			expected: "{\"a\": 1}",
		},
		{
			name:     "无围栏原样返回",
			input:    "{\"a\": 1}",
			expected: "{\"a\": 1}",
		},
		{
			name:     "带首尾空白",
			input:    "  ```json\n{\"a\": 1}\n```  ",
			expected: "{\"a\": 1}",
		},
		{
			name:     "普通文本",
			input:    "hello world",
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.expected {
				t.Errorf("期望 %q, 实际 %q", tt.expected, got)
			}
		})
	}
}

func TestParseSecurityVerdict(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantParsed bool
		wantAllow  bool
		wantPlant  bool
		wantLegal  bool
	}{
		{
			name:       "允许处理",
			input:      `{"is_plant_image": true, "is_legal_plant": true, "plant_type": "Tomato", "notes": "", "allow_processing": true}`,
			wantParsed: true,
			wantAllow:  true,
			wantPlant:  true,
			wantLegal:  true,
		},
		{
			name:       "非植物",
			input:      `{"is_plant_image": false, "is_legal_plant": true, "allow_processing": false}`,
			wantParsed: true,
			wantAllow:  false,
			wantPlant:  false,
			wantLegal:  true,
		},
		{
			name:       "受限物种",
			input:      `{"is_plant_image": true, "is_legal_plant": false, "plant_type": "Cannabis", "allow_processing": false}`,
			wantParsed: true,
			wantAllow:  false,
			wantPlant:  true,
			wantLegal:  false,
		},
		{
			name:       "模型谎报allow时重新推导",
			input:      `{"is_plant_image": false, "is_legal_plant": false, "allow_processing": true}`,
			wantParsed: true,
			wantAllow:  false,
		},
		{
			name:       "不可解析时失败即关闭",
			input:      "I think this is a plant.",
			wantParsed: false,
			wantAllow:  false,
		},
		{
			name:       "围栏包裹",
			input:      "```json\n{\"is_plant_image\": true, \"is_legal_plant\": true}\n```",
			wantParsed: true,
			wantAllow:  true,
			wantPlant:  true,
			wantLegal:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, parsed := ParseSecurityVerdict(tt.input)
			if parsed != tt.wantParsed {
				t.Errorf("parsed期望 %v, 实际 %v", tt.wantParsed, parsed)
			}
			if verdict.AllowProcessing != tt.wantAllow {
				t.Errorf("allow期望 %v, 实际 %v", tt.wantAllow, verdict.AllowProcessing)
			}
			if parsed && verdict.IsPlantImage != tt.wantPlant {
				t.Errorf("is_plant_image期望 %v, 实际 %v", tt.wantPlant, verdict.IsPlantImage)
			}
			if parsed && verdict.IsLegalPlant != tt.wantLegal {
				t.Errorf("is_legal_plant期望 %v, 实际 %v", tt.wantLegal, verdict.IsLegalPlant)
			}
		})
	}
}

func TestParsePlantInfo(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantPlant     string
		wantCondition string
	}{
		{
			name:          "正常解析",
			input:         `{"plant_name": "Tomato", "condition": "Early Blight"}`,
			wantPlant:     "Tomato",
			wantCondition: "Early Blight",
		},
		{
			name:          "不可解析补默认值",
			input:         "it looks like a tomato",
			wantPlant:     "Unknown Plant",
			wantCondition: "Unknown Condition",
		},
		{
			name:          "字段缺失补默认值",
			input:         `{"plant_name": "Tomato"}`,
			wantPlant:     "Tomato",
			wantCondition: "Unknown Condition",
		},
		{
			name:          "空白字段视为缺失",
			input:         `{"plant_name": "  ", "condition": "Healthy"}`,
			wantPlant:     "Unknown Plant",
			wantCondition: "Healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParsePlantInfo(tt.input)
			if info.PlantName != tt.wantPlant {
				t.Errorf("plant_name期望 %q, 实际 %q", tt.wantPlant, info.PlantName)
			}
			if info.Condition != tt.wantCondition {
				t.Errorf("condition期望 %q, 实际 %q", tt.wantCondition, info.Condition)
			}
		})
	}
}

func TestPlantInfoIsHealthy(t *testing.T) {
	tests := []struct {
		condition string
		expected  bool
	}{
		{"healthy", true},
		{"Healthy", true},
		{"HEALTHY", true},
		{" healthy ", true},
		{"rust leaf", false},
		{"", false},
	}

	for _, tt := range tests {
		info := PlantInfo{Condition: tt.condition}
		if got := info.IsHealthy(); got != tt.expected {
			t.Errorf("condition=%q 期望 %v, 实际 %v", tt.condition, tt.expected, got)
		}
	}
}

func TestParseDiagnosisRecord(t *testing.T) {
	t.Run("完整记录", func(t *testing.T) {
		raw := `{"plant_name": "Tomato", "condition": "Early Blight", "detail_diagnosis": "Fungal infection.", "action_plan": [{"id": 1, "action": "Remove affected leaves."}, {"id": 2, "action": "Apply fungicide."}]}`
		record := ParseDiagnosisRecord(raw)
		if record.PlantName != "Tomato" || record.Condition != "Early Blight" {
			t.Errorf("记录字段不正确: %+v", record)
		}
		if len(record.ActionPlan) != 2 {
			t.Fatalf("期望2个步骤, 实际%d", len(record.ActionPlan))
		}
	})

	t.Run("不可解析补全默认值", func(t *testing.T) {
		record := ParseDiagnosisRecord("not json at all")
		if record.PlantName != "Unknown Plant" {
			t.Errorf("plant_name期望默认值, 实际 %q", record.PlantName)
		}
		if record.Condition != "Unknown Condition" {
			t.Errorf("condition期望默认值, 实际 %q", record.Condition)
		}
		if record.DetailDiagnosis != "No detailed diagnosis found." {
			t.Errorf("detail_diagnosis期望默认值, 实际 %q", record.DetailDiagnosis)
		}
		if record.ActionPlan == nil || len(record.ActionPlan) != 0 {
			t.Errorf("action_plan期望空数组, 实际 %v", record.ActionPlan)
		}
	})

	t.Run("id重排为从1开始连续", func(t *testing.T) {
		raw := `{"plant_name": "Rose", "condition": "Black Spot", "detail_diagnosis": "...", "action_plan": [{"id": 3, "action": "a"}, {"id": 3, "action": "b"}, {"id": 9, "action": "c"}]}`
		record := ParseDiagnosisRecord(raw)
		for i, item := range record.ActionPlan {
			if item.ID != i+1 {
				t.Errorf("第%d项id期望%d, 实际%d", i, i+1, item.ID)
			}
		}
	})

	t.Run("围栏包裹的记录", func(t *testing.T) {
		raw := "```json\n{\"plant_name\": \"Apple\", \"condition\": \"Rust\", \"detail_diagnosis\": \"d\", \"action_plan\": []}\n```"
		record := ParseDiagnosisRecord(raw)
		if record.PlantName != "Apple" || record.Condition != "Rust" {
			t.Errorf("围栏记录解析失败: %+v", record)
		}
	})
}
