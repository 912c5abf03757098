package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 是 ospeak 的顶层配置结构。
type Config struct {
	Model ModelConfig `yaml:"model"`
	Log   LogConfig   `yaml:"log"`
}

// ModelConfig 是加载模型时可选的配置覆盖。
// 加载时传 nil 表示完全使用模型文件内嵌的默认值。
type ModelConfig struct {
	// Backend 推理后端: onnx, sherpa
	Backend string `yaml:"backend"`
	// SampleRate 输出采样率（Hz），0 表示从模型元数据读取
	SampleRate int `yaml:"sample_rate"`
	// PadID 批量输入补齐时使用的符号 ID
	PadID      int64  `yaml:"pad_id"`
	NumThreads int    `yaml:"num_threads"`
	Provider   string `yaml:"provider"`

	ONNX   ONNXConfig   `yaml:"onnx"`
	Sherpa SherpaConfig `yaml:"sherpa"`
}

// ONNXConfig onnxruntime 后端配置。
type ONNXConfig struct {
	// LibraryPath onnxruntime 动态库路径，为空则使用系统默认
	LibraryPath string   `yaml:"library_path"`
	InputNames  []string `yaml:"input_names"`
	OutputNames []string `yaml:"output_names"`
}

// SherpaConfig sherpa-onnx 离线 TTS 后端配置。
type SherpaConfig struct {
	Tokens    string `yaml:"tokens"`
	Lexicon   string `yaml:"lexicon"`
	DataDir   string `yaml:"data_dir"`
	SpeakerID int    `yaml:"speaker_id"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)
	return cfg, nil
}

// LoadModelConfig 读取只包含模型配置的 YAML 文件（即顶层 model 段）。
func LoadModelConfig(path string) (*ModelConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &cfg.Model, nil
}

// DefaultModelConfig 返回填充好默认值的模型配置。
func DefaultModelConfig() *ModelConfig {
	mc := &ModelConfig{}
	setModelDefaults(mc)
	return mc
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${ONNXRUNTIME_LIB}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	setModelDefaults(&cfg.Model)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func setModelDefaults(mc *ModelConfig) {
	if mc.Backend == "" {
		mc.Backend = "onnx"
	}
	if mc.NumThreads == 0 {
		mc.NumThreads = 1
	}
	if mc.Provider == "" {
		mc.Provider = "cpu"
	}
	if len(mc.ONNX.InputNames) == 0 {
		mc.ONNX.InputNames = []string{"x", "x_lengths", "scales"}
	}
	if len(mc.ONNX.OutputNames) == 0 {
		mc.ONNX.OutputNames = []string{"wav", "wav_lengths"}
	}
	if mc.Sherpa.Tokens == "" {
		mc.Sherpa.Tokens = "tokens.txt"
	}
}

// Normalize 返回一份填充了默认值的副本，nil 返回默认配置。
func (mc *ModelConfig) Normalize() *ModelConfig {
	if mc == nil {
		return DefaultModelConfig()
	}
	cp := *mc
	cp.ONNX.InputNames = append([]string(nil), mc.ONNX.InputNames...)
	cp.ONNX.OutputNames = append([]string(nil), mc.ONNX.OutputNames...)
	setModelDefaults(&cp)
	return &cp
}
