// Package engine 定义 ospeak 所包装的原生 TTS 推理引擎的契约。
//
// 桥接层只依赖这里的类型；具体实现（onnxruntime、sherpa-onnx）位于子包中，
// 通过 Register 注册到后端表，由 Open 按配置名创建。
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iabetor/ospeak/internal/config"
)

// Input 是引擎期望的定长批量输入：按行主序存放的补齐矩阵加上每行真实长度。
type Input struct {
	// IDs 长度为 Rows*Width，第 i 行位于 IDs[i*Width:(i+1)*Width]
	IDs     []int64
	Rows    int
	Width   int
	Lengths []int64
}

// Row 返回第 i 行（包含补齐部分）。
func (in Input) Row(i int) []int64 {
	return in.IDs[i*in.Width : (i+1)*in.Width]
}

// Controls 是三个韵律倍率，1.0 表示不修改。
// 桥接层不限制取值范围，越界值由引擎自行拒绝或钳位。
type Controls struct {
	Duration float64
	Pitch    float64
	Energy   float64
}

// DefaultControls 返回全部为 1.0 的韵律参数。
func DefaultControls() Controls {
	return Controls{Duration: 1.0, Pitch: 1.0, Energy: 1.0}
}

// Output 是一次合成的结果记录，Waveforms 与输入行一一对应。
type Output struct {
	Waveforms  [][]float32
	SampleRate int
}

// Engine 是一个已加载的推理引擎实例。
// 实现不要求并发安全，调用方负责串行化。
type Engine interface {
	// Synthesize 对整个批次执行一次推理。
	Synthesize(in Input, c Controls) (*Output, error)
	// SampleRate 返回输出音频采样率（Hz）。
	SampleRate() int
	// PadID 返回补齐使用的符号 ID。
	PadID() int64
	// Close 释放原生资源，重复调用无副作用。
	Close() error
}

// Opener 从模型文件创建引擎。cfg 已经填充默认值，不会为 nil。
type Opener func(path string, cfg *config.ModelConfig) (Engine, error)

var (
	mu      sync.RWMutex
	openers = make(map[string]Opener)
)

// Register 注册一个后端。重复注册同名后端会覆盖旧值。
func Register(name string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[name] = open
}

// Backends 返回已注册的后端名称（已排序）。
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open 按 cfg.Backend 选择后端并加载模型。cfg 为 nil 时使用默认配置。
func Open(path string, cfg *config.ModelConfig) (Engine, error) {
	cfg = cfg.Normalize()

	mu.RLock()
	open, ok := openers[cfg.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的推理后端 %q（可用: %v）", cfg.Backend, Backends())
	}
	return open(path, cfg)
}
