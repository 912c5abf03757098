// Package sherpa 用 sherpa-onnx 离线 TTS（VITS 类模型）实现引擎契约。
//
// sherpa-onnx 只接受文本输入，因此每行符号 ID 先按模型的 tokens.txt 还原为符号串再合成。
// 时长倍率换算为 speed = 1/duration；音高与能量倍率不被 sherpa-onnx 支持，会被忽略。
package sherpa

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/ospeak/internal/config"
	"github.com/iabetor/ospeak/internal/engine"
	"github.com/iabetor/ospeak/internal/logger"
)

const defaultSampleRate = 22050

func init() {
	engine.Register("sherpa", Open)
}

// Engine 封装 sherpa-onnx OfflineTts。
type Engine struct {
	tts        *sherpa.OfflineTts
	symbols    map[int64]string
	speakerID  int
	sampleRate int
	padID      int64

	warnedControls bool
}

var _ engine.Engine = (*Engine)(nil)

// Open 创建 sherpa-onnx 离线 TTS。
// tokens 为相对路径时相对于模型文件所在目录解析。
func Open(path string, cfg *config.ModelConfig) (engine.Engine, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("[sherpa] 模型文件不可用: %w", err)
	}

	tokensPath := resolvePath(path, cfg.Sherpa.Tokens)
	symbols, err := loadTokens(tokensPath)
	if err != nil {
		return nil, err
	}

	ttsConfig := sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Vits.Model = path
	ttsConfig.Model.Vits.Tokens = tokensPath
	ttsConfig.Model.Vits.NoiseScale = 0.667
	ttsConfig.Model.Vits.NoiseScaleW = 0.8
	ttsConfig.Model.Vits.LengthScale = 1.0
	if cfg.Sherpa.Lexicon != "" {
		ttsConfig.Model.Vits.Lexicon = resolvePath(path, cfg.Sherpa.Lexicon)
	}
	if cfg.Sherpa.DataDir != "" {
		ttsConfig.Model.Vits.DataDir = resolvePath(path, cfg.Sherpa.DataDir)
	}
	ttsConfig.Model.NumThreads = cfg.NumThreads
	ttsConfig.Model.Provider = cfg.Provider
	ttsConfig.Model.Debug = 0
	ttsConfig.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&ttsConfig)
	if tts == nil {
		return nil, fmt.Errorf("[sherpa] 创建离线 TTS 失败，模型: %s", path)
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	logger.Infof("[sherpa] 离线 TTS 已初始化 (model=%s, tokens=%d, speaker=%d)",
		path, len(symbols), cfg.Sherpa.SpeakerID)

	return &Engine{
		tts:        tts,
		symbols:    symbols,
		speakerID:  cfg.Sherpa.SpeakerID,
		sampleRate: sampleRate,
		padID:      cfg.PadID,
	}, nil
}

func resolvePath(modelPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(modelPath), p)
}

// loadTokens 解析 tokens.txt，每行 "<符号> <ID>"。符号本身可以是空格。
func loadTokens(path string) (map[int64]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[sherpa] 打开符号表失败: %w", err)
	}
	defer f.Close()

	symbols := make(map[int64]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			return nil, fmt.Errorf("[sherpa] 符号表第 %d 行格式错误: %q", lineNo, line)
		}
		id, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("[sherpa] 符号表第 %d 行 ID 无效: %q", lineNo, line)
		}
		symbols[id] = line[:idx]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[sherpa] 读取符号表失败: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("[sherpa] 符号表为空: %s", path)
	}
	return symbols, nil
}

// decode 把一行符号 ID 还原成 sherpa-onnx 的输入文本。
func decode(symbols map[int64]string, ids []int64) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		sym, ok := symbols[id]
		if !ok {
			return "", fmt.Errorf("[sherpa] 未知符号 ID %d", id)
		}
		b.WriteString(sym)
	}
	return b.String(), nil
}

// speedFor 把时长倍率换算为 sherpa-onnx 的语速。
func speedFor(duration float64) (float32, error) {
	if duration <= 0 {
		return 0, fmt.Errorf("[sherpa] 时长倍率必须为正数，实际 %v", duration)
	}
	return float32(1.0 / duration), nil
}

// Synthesize 逐行调用 sherpa-onnx 生成音频。
func (e *Engine) Synthesize(in engine.Input, c engine.Controls) (*engine.Output, error) {
	if e.tts == nil {
		return nil, fmt.Errorf("[sherpa] 引擎已关闭")
	}
	speed, err := speedFor(c.Duration)
	if err != nil {
		return nil, err
	}
	if (c.Pitch != 1 || c.Energy != 1) && !e.warnedControls {
		logger.Warnf("[sherpa] 不支持音高/能量倍率，已忽略 (p=%.2f, e=%.2f)", c.Pitch, c.Energy)
		e.warnedControls = true
	}

	out := &engine.Output{Waveforms: make([][]float32, in.Rows)}
	for i := 0; i < in.Rows; i++ {
		text, err := decode(e.symbols, in.Row(i)[:in.Lengths[i]])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i, err)
		}

		audio := e.tts.Generate(text, e.speakerID, speed)
		if audio == nil || len(audio.Samples) == 0 {
			return nil, fmt.Errorf("[sherpa] 第 %d 行没有生成音频", i)
		}
		if audio.SampleRate > 0 {
			e.sampleRate = audio.SampleRate
		}
		out.Waveforms[i] = audio.Samples
		logger.Debugf("[sherpa] 第 %d 行: %d 个符号 → %d 个样本", i, in.Lengths[i], len(audio.Samples))
	}
	out.SampleRate = e.sampleRate
	return out, nil
}

// SampleRate 返回输出采样率；第一次合成后以模型实际输出为准。
func (e *Engine) SampleRate() int { return e.sampleRate }

// PadID 返回补齐符号。
func (e *Engine) PadID() int64 { return e.padID }

// Close 释放底层 sherpa-onnx 资源。
func (e *Engine) Close() error {
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
		logger.Info("[sherpa] 离线 TTS 已关闭")
	}
	return nil
}
