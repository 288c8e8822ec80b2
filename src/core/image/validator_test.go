package image

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"willow-server-go/src/configs"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("生成PNG失败: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("生成JPEG失败: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{
			name:     "JPEG文件头",
			data:     []byte{0xFF, 0xD8, 0xFF, 0xE0},
			expected: "jpeg",
		},
		{
			name:     "PNG文件头",
			data:     []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00},
			expected: "png",
		},
		{
			name:     "GIF文件头",
			data:     []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61},
			expected: "gif",
		},
		{
			name:     "BMP文件头",
			data:     []byte{0x42, 0x4D, 0x00, 0x00},
			expected: "bmp",
		},
		{
			name:     "WEBP文件头",
			data:     []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x00, 0x00, 0x00, 0x57, 0x45, 0x42, 0x50},
			expected: "webp",
		},
		{
			name:     "RIFF但不是WEBP",
			data:     []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x00, 0x00, 0x00, 0x57, 0x41, 0x56, 0x45},
			expected: "",
		},
		{
			name:     "未知格式",
			data:     []byte("plain text"),
			expected: "",
		},
		{
			name:     "空数据",
			data:     nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.expected {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidateImageBytes(t *testing.T) {
	cfg := &configs.SecurityConfig{
		MaxFileSize:    1024 * 1024,
		MaxWidth:       2048,
		MaxHeight:      2048,
		AllowedFormats: []string{"jpeg", "png"},
	}
	v := NewImageSecurityValidator(cfg)

	t.Run("合法PNG", func(t *testing.T) {
		result := v.ValidateImageBytes(encodePNG(t, 16, 16), "")
		if !result.IsValid {
			t.Fatalf("期望验证通过, 错误: %v", result.Error)
		}
		if result.Format != "png" || result.Width != 16 || result.Height != 16 {
			t.Errorf("验证结果不正确: %+v", result)
		}
	})

	t.Run("合法JPEG且声明jpg", func(t *testing.T) {
		result := v.ValidateImageBytes(encodeJPEG(t, 8, 8), "jpg")
		if !result.IsValid {
			t.Fatalf("期望验证通过, 错误: %v", result.Error)
		}
	})

	t.Run("声明格式与实际不符", func(t *testing.T) {
		result := v.ValidateImageBytes(encodePNG(t, 8, 8), "jpeg")
		if result.IsValid {
			t.Error("期望验证失败")
		}
	})

	t.Run("格式不在允许列表", func(t *testing.T) {
		gif := []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61}
		result := v.ValidateImageBytes(gif, "")
		if result.IsValid {
			t.Error("期望验证失败")
		}
	})

	t.Run("文件过大", func(t *testing.T) {
		small := NewImageSecurityValidator(&configs.SecurityConfig{MaxFileSize: 10})
		result := small.ValidateImageBytes(encodePNG(t, 16, 16), "")
		if result.IsValid {
			t.Error("期望验证失败")
		}
	})

	t.Run("尺寸超限", func(t *testing.T) {
		narrow := NewImageSecurityValidator(&configs.SecurityConfig{MaxWidth: 4, MaxHeight: 4})
		result := narrow.ValidateImageBytes(encodePNG(t, 16, 16), "")
		if result.IsValid {
			t.Error("期望验证失败")
		}
	})

	t.Run("文件头合法但内容损坏", func(t *testing.T) {
		corrupted := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("not a real png")...)
		result := v.ValidateImageBytes(corrupted, "")
		if result.IsValid {
			t.Error("期望验证失败")
		}
	})
}
