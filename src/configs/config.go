package configs

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Web struct {
		Port int `yaml:"port"`
		Auth struct {
			Enabled bool   `yaml:"enabled"`
			Secret  string `yaml:"secret"`
		} `yaml:"auth"`
	} `yaml:"web"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	SelectedModule map[string]string `yaml:"selected_module"`

	LLM       map[string]LLMConfig       `yaml:"LLM"`
	VLLLM     map[string]VLLMConfig      `yaml:"VLLLM"`
	Embedding map[string]EmbeddingConfig `yaml:"Embedding"`

	Vector   VectorConfig   `yaml:"vector"`
	Storage  StorageConfig  `yaml:"storage"`
	Diagnose DiagnoseConfig `yaml:"diagnose"`
}

// LLMConfig LLM配置结构
type LLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // 最大文件大小（字节）
	MaxWidth       int      `yaml:"max_width"`       // 最大宽度
	MaxHeight      int      `yaml:"max_height"`      // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"` // 允许的图片格式
}

// VLLMConfig VLLLM配置结构（视觉语言大模型）
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // API类型，复用LLM的类型
	ModelName   string                 `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	Security    SecurityConfig         `yaml:"security"`    // 图片安全配置
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// EmbeddingConfig Embedding配置结构
type EmbeddingConfig struct {
	Type      string `yaml:"type"`       // API类型
	ModelName string `yaml:"model_name"` // 嵌入模型名称
	BaseURL   string `yaml:"url"`        // API地址
	APIKey    string `yaml:"api_key"`    // API密钥
	Dimension int    `yaml:"dimension"`  // 向量维度，必须与向量索引一致
}

// VectorConfig 向量索引配置结构
// API密钥从环境变量 PINECONE_API_KEY 读取
type VectorConfig struct {
	IndexName string `yaml:"index_name"` // 索引名称
	IndexHost string `yaml:"index_host"` // 数据面地址，形如 https://xxx.svc.xxx.pinecone.io
	Namespace string `yaml:"namespace"`  // 命名空间，可为空
	Dimension int    `yaml:"dimension"`  // 向量维度
	TopK      int    `yaml:"top_k"`      // 默认检索条数
}

// StorageConfig 对象存储配置结构（MinIO等S3兼容服务）
// 访问密钥从环境变量 S3_ACCESS_KEY / S3_SECRET_KEY 读取
type StorageConfig struct {
	Endpoint       string `yaml:"endpoint"`         // 服务地址 host:port
	Bucket         string `yaml:"bucket"`           // 存储桶名称
	Region         string `yaml:"region"`           // 区域，默认us-east-1
	DisableTLS     bool   `yaml:"disable_tls"`      // 是否使用http
	ForcePathStyle bool   `yaml:"force_path_style"` // 路径风格寻址，MinIO需要开启
}

// DiagnoseConfig 诊断流水线配置结构
type DiagnoseConfig struct {
	StageTimeout   string `yaml:"stage_timeout"`   // 单阶段超时时间，如 "60s"
	EnableSearch   bool   `yaml:"enable_search"`   // 诊断阶段是否允许调用外部搜索
	HistoryEnabled bool   `yaml:"history_enabled"` // 是否将诊断结果写入数据库
}

// StageTimeoutDuration 解析单阶段超时时间，非法值回退为60秒
func (c *DiagnoseConfig) StageTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.StageTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}

	return config, path, nil
}
