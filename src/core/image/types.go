package image

// ImageData 图片数据结构
type ImageData struct {
	Data   string `json:"data,omitempty"`   // base64编码的图片数据
	Format string `json:"format,omitempty"` // 图片格式：jpeg, png, webp, gif, bmp
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid  bool   // 是否有效
	Format   string // 实际格式
	Width    int    // 图片宽度
	Height   int    // 图片高度
	FileSize int64  // 文件大小
	Error    error  // 错误信息
}
