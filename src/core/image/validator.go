package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"willow-server-go/src/configs"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/bmp"  // 注册BMP解码器
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// ImageSecurityValidator 图片安全验证器
type ImageSecurityValidator struct {
	config *configs.SecurityConfig
}

// NewImageSecurityValidator 创建新的图片安全验证器
func NewImageSecurityValidator(config *configs.SecurityConfig) *ImageSecurityValidator {
	return &ImageSecurityValidator{
		config: config,
	}
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8}, // JPEG文件只需要前两个字节
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
}

// DetectFormat 根据文件头检测图片格式，未知时返回空字符串
func DetectFormat(data []byte) string {
	if len(data) >= 12 &&
		bytes.HasPrefix(data, imageSignatures["webp"]) &&
		bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	for _, format := range []string{"png", "gif", "bmp", "jpeg"} {
		if bytes.HasPrefix(data, imageSignatures[format]) {
			return format
		}
	}
	return ""
}

// IsValidImageFile 检查数据是否带有已知图片格式的文件头
func IsValidImageFile(data []byte) bool {
	return DetectFormat(data) != ""
}

// ValidateImageData 验证base64编码的图片数据
func (v *ImageSecurityValidator) ValidateImageData(imageData ImageData) ValidationResult {
	result := ValidationResult{IsValid: false}

	if imageData.Data == "" {
		result.Error = fmt.Errorf("缺少图片数据")
		return result
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData.Data)
	if err != nil {
		result.Error = fmt.Errorf("base64解码失败: %v", err)
		return result
	}

	return v.ValidateImageBytes(imageBytes, imageData.Format)
}

// ValidateImageBytes 验证原始图片字节
func (v *ImageSecurityValidator) ValidateImageBytes(data []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{IsValid: false, FileSize: int64(len(data))}

	// 1. 大小检查
	if v.config.MaxFileSize > 0 && int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		return result
	}

	// 2. 文件头检查
	actualFormat := DetectFormat(data)
	if actualFormat == "" {
		result.Error = fmt.Errorf("无法识别的图片格式")
		return result
	}
	if declaredFormat != "" && !formatMatches(declaredFormat, actualFormat) {
		result.Error = fmt.Errorf("声明格式 %s 与实际格式 %s 不一致", declaredFormat, actualFormat)
		return result
	}

	// 3. 格式允许列表检查
	if !v.isFormatAllowed(actualFormat) {
		result.Error = fmt.Errorf("不支持的格式: %s", actualFormat)
		return result
	}

	// 4. 解码检查，确认是合法图片并获取尺寸
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		return result
	}

	if v.config.MaxWidth > 0 && cfg.Width > v.config.MaxWidth {
		result.Error = fmt.Errorf("图片宽度超限: %d，最大允许: %d", cfg.Width, v.config.MaxWidth)
		return result
	}
	if v.config.MaxHeight > 0 && cfg.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片高度超限: %d，最大允许: %d", cfg.Height, v.config.MaxHeight)
		return result
	}

	result.IsValid = true
	result.Format = actualFormat
	result.Width = cfg.Width
	result.Height = cfg.Height
	return result
}

// isFormatAllowed 检查格式是否在允许列表中，列表为空时允许全部已知格式
func (v *ImageSecurityValidator) isFormatAllowed(format string) bool {
	if len(v.config.AllowedFormats) == 0 {
		return true
	}
	for _, allowed := range v.config.AllowedFormats {
		if formatMatches(allowed, format) {
			return true
		}
	}
	return false
}

// formatMatches 比较格式名，jpg与jpeg视为同一格式
func formatMatches(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "jpg" {
		a = "jpeg"
	}
	if b == "jpg" {
		b = "jpeg"
	}
	return a == b
}
