package knowledge

import (
	"testing"
)

func TestExtractPlantAndCondition(t *testing.T) {
	tests := []struct {
		name          string
		folder        string
		wantPlant     string
		wantCondition string
	}{
		{
			name:          "病害目录",
			folder:        "apple_rust_leaf",
			wantPlant:     "Apple",
			wantCondition: "Rust",
		},
		{
			name:          "多词病害",
			folder:        "tomato_early_blight",
			wantPlant:     "Tomato",
			wantCondition: "Early Blight",
		},
		{
			name:          "健康目录归一化",
			folder:        "corn_healthy_leaf",
			wantPlant:     "Corn",
			wantCondition: "Healthy",
		},
		{
			name:          "格式不符回退默认值",
			folder:        "misc",
			wantPlant:     "Unknown Plant",
			wantCondition: "Unknown Condition",
		},
		{
			name:          "只剩leaf后缀",
			folder:        "grape_leaf",
			wantPlant:     "Grape",
			wantCondition: "Unknown Condition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plant, condition := ExtractPlantAndCondition(tt.folder)
			if plant != tt.wantPlant {
				t.Errorf("plant期望 %q, 实际 %q", tt.wantPlant, plant)
			}
			if condition != tt.wantCondition {
				t.Errorf("condition期望 %q, 实际 %q", tt.wantCondition, condition)
			}
		})
	}
}

func TestDocumentID(t *testing.T) {
	tests := []struct {
		name      string
		plant     string
		condition string
		filename  string
		expected  string
	}{
		{
			name:      "普通样本",
			plant:     "Tomato",
			condition: "Early Blight",
			filename:  "img001.jpg",
			expected:  "tomato_early_blight_img001.jpg",
		},
		{
			name:      "健康样本",
			plant:     "Corn",
			condition: "Healthy",
			filename:  "a.png",
			expected:  "corn_healthy_a.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DocumentID(tt.plant, tt.condition, tt.filename); got != tt.expected {
				t.Errorf("期望 %q, 实际 %q", tt.expected, got)
			}
		})
	}

	// 相同输入必须生成相同id，保证重复加载覆盖而非重复
	a := DocumentID("Tomato", "Early Blight", "img001.jpg")
	b := DocumentID("Tomato", "Early Blight", "img001.jpg")
	if a != b {
		t.Errorf("id不确定: %q vs %q", a, b)
	}
}

func TestIsImageFilename(t *testing.T) {
	valid := []string{"a.jpg", "b.JPEG", "c.png", "d.gif", "e.bmp", "f.webp"}
	for _, name := range valid {
		if !isImageFilename(name) {
			t.Errorf("%q 应被识别为图片", name)
		}
	}
	invalid := []string{"a.txt", "b.pdf", "noext", ".hidden"}
	for _, name := range invalid {
		if isImageFilename(name) {
			t.Errorf("%q 不应被识别为图片", name)
		}
	}
}
