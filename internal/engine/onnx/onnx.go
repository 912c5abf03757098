// Package onnx 用 onnxruntime 执行音素到波形的 ONNX 模型（OptiSpeech 导出格式）。
//
// 图的输入输出:
//
//	x           int64   [B, T]  补齐后的符号 ID
//	x_lengths   int64   [B]     每行真实长度
//	scales      float32 [3]     时长、音高、能量倍率
//	wav         float32 [B, N]  波形
//	wav_lengths int64   [B]     每行有效样本数（可选）
package onnx

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/iabetor/ospeak/internal/config"
	"github.com/iabetor/ospeak/internal/engine"
	"github.com/iabetor/ospeak/internal/logger"
)

// defaultSampleRate 用于模型元数据中没有 sample_rate 的情况。
const defaultSampleRate = 22050

func init() {
	engine.Register("onnx", Open)
}

// Engine 封装一个 onnxruntime 会话。
type Engine struct {
	session     *ort.DynamicAdvancedSession
	outputNames []string
	sampleRate  int
	padID       int64
}

var _ engine.Engine = (*Engine)(nil)

// onnxruntime 环境是进程级的，只初始化一次，进程退出前不销毁
var envMu sync.Mutex

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("[onnx] 初始化 onnxruntime 失败: %w", err)
	}
	logger.Infof("[onnx] onnxruntime 已初始化 (library=%q)", libPath)
	return nil
}

// Open 加载 ONNX 模型文件。
func Open(path string, cfg *config.ModelConfig) (engine.Engine, error) {
	if len(cfg.ONNX.InputNames) != 3 {
		return nil, fmt.Errorf("[onnx] 需要 3 个输入名（符号、长度、韵律），实际 %d 个", len(cfg.ONNX.InputNames))
	}
	if len(cfg.ONNX.OutputNames) == 0 {
		return nil, fmt.Errorf("[onnx] 至少需要 1 个输出名")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[onnx] 读取模型文件失败: %w", err)
	}

	if err := initEnvironment(cfg.ONNX.LibraryPath); err != nil {
		return nil, err
	}

	if err := checkGraph(data, cfg.ONNX.InputNames, cfg.ONNX.OutputNames); err != nil {
		return nil, err
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = metadataSampleRate(path)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建会话选项失败: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
		return nil, fmt.Errorf("[onnx] 设置线程数失败: %w", err)
	}
	if cfg.Provider == "cuda" {
		if err := appendCUDA(opts); err != nil {
			return nil, err
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data, cfg.ONNX.InputNames, cfg.ONNX.OutputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建推理会话失败: %w", err)
	}

	logger.Infof("[onnx] 模型已加载 (model=%s, threads=%d, provider=%s, sample_rate=%d)",
		path, cfg.NumThreads, cfg.Provider, sampleRate)

	return &Engine{
		session:     session,
		outputNames: cfg.ONNX.OutputNames,
		sampleRate:  sampleRate,
		padID:       cfg.PadID,
	}, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("[onnx] 创建 CUDA 选项失败: %w", err)
	}
	defer cudaOpts.Destroy()
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("[onnx] 启用 CUDA 失败: %w", err)
	}
	return nil
}

// checkGraph 确认模型声明了配置中的输入输出，用来尽早发现版本不匹配的模型。
func checkGraph(data []byte, inputNames, outputNames []string) error {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return fmt.Errorf("[onnx] 解析模型失败: %w", err)
	}
	if missing := missingNames(inputs, inputNames); len(missing) > 0 {
		return fmt.Errorf("[onnx] 模型版本不匹配，缺少输入 %v", missing)
	}
	if missing := missingNames(outputs, outputNames); len(missing) > 0 {
		return fmt.Errorf("[onnx] 模型版本不匹配，缺少输出 %v", missing)
	}
	return nil
}

func missingNames(infos []ort.InputOutputInfo, want []string) []string {
	have := make(map[string]bool, len(infos))
	for _, info := range infos {
		have[info.Name] = true
	}
	var missing []string
	for _, name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// metadataSampleRate 读取模型自定义元数据中的 sample_rate。
func metadataSampleRate(path string) int {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		logger.Warnf("[onnx] 读取模型元数据失败，使用默认采样率 %d: %v", defaultSampleRate, err)
		return defaultSampleRate
	}
	defer meta.Destroy()

	value, ok, err := meta.LookupCustomMetadataMap("sample_rate")
	if err != nil || !ok {
		logger.Debugf("[onnx] 模型元数据没有 sample_rate，使用默认值 %d", defaultSampleRate)
		return defaultSampleRate
	}
	sr, err := strconv.Atoi(value)
	if err != nil || sr <= 0 {
		logger.Warnf("[onnx] 模型元数据 sample_rate=%q 无效，使用默认值 %d", value, defaultSampleRate)
		return defaultSampleRate
	}
	return sr
}

// Synthesize 对整个批次执行一次推理。
func (e *Engine) Synthesize(in engine.Input, c engine.Controls) (*engine.Output, error) {
	if e.session == nil {
		return nil, fmt.Errorf("[onnx] 会话已关闭")
	}

	x, err := ort.NewTensor(ort.NewShape(int64(in.Rows), int64(in.Width)), in.IDs)
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建输入张量失败: %w", err)
	}
	defer x.Destroy()

	lengths, err := ort.NewTensor(ort.NewShape(int64(in.Rows)), in.Lengths)
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建长度张量失败: %w", err)
	}
	defer lengths.Destroy()

	scales, err := ort.NewTensor(ort.NewShape(3), []float32{
		float32(c.Duration), float32(c.Pitch), float32(c.Energy),
	})
	if err != nil {
		return nil, fmt.Errorf("[onnx] 创建韵律张量失败: %w", err)
	}
	defer scales.Destroy()

	outputs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run([]ort.Value{x, lengths, scales}, outputs); err != nil {
		return nil, fmt.Errorf("[onnx] 推理失败: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	wav, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("[onnx] 输出 %s 不是 float32 张量", e.outputNames[0])
	}

	var wavLengths []int64
	if len(outputs) > 1 {
		if lt, ok := outputs[1].(*ort.Tensor[int64]); ok {
			wavLengths = lt.GetData()
		} else {
			logger.Debugf("[onnx] 输出 %s 不是 int64 张量，忽略", e.outputNames[1])
		}
	}

	waveforms, err := splitWaveforms(wav.GetData(), wav.GetShape(), wavLengths, in.Rows)
	if err != nil {
		return nil, err
	}
	return &engine.Output{Waveforms: waveforms, SampleRate: e.sampleRate}, nil
}

// splitWaveforms 把 [B, N]（或 [B, 1, N]、[N]）的波形张量拆成每行一段，
// 按 wav_lengths 截掉补齐部分。返回的切片都是新分配的，不引用 onnxruntime 的内存。
func splitWaveforms(data []float32, shape []int64, lengths []int64, rows int) ([][]float32, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("[onnx] 波形张量形状为空")
	}
	n := int(shape[len(shape)-1])
	if n <= 0 {
		return nil, nil
	}
	batch := len(data) / n
	if batch < rows {
		return nil, fmt.Errorf("[onnx] 波形张量只有 %d 行，期望 %d 行 (shape=%v)", batch, rows, shape)
	}

	out := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		seg := data[i*n : (i+1)*n]
		if i < len(lengths) {
			l := lengths[i]
			if l < 0 || l > int64(n) {
				return nil, fmt.Errorf("[onnx] 第 %d 行 wav_lengths=%d 超出范围 [0, %d]", i, l, n)
			}
			seg = seg[:l]
		}
		w := make([]float32, len(seg))
		copy(w, seg)
		out[i] = w
	}
	return out, nil
}

// SampleRate 返回输出采样率。
func (e *Engine) SampleRate() int { return e.sampleRate }

// PadID 返回补齐符号。
func (e *Engine) PadID() int64 { return e.padID }

// Close 销毁会话。
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	if err != nil {
		return fmt.Errorf("[onnx] 销毁会话失败: %w", err)
	}
	logger.Info("[onnx] 推理会话已关闭")
	return nil
}
