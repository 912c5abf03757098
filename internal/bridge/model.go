// Package bridge 把一个原生 TTS 推理引擎暴露给宿主环境。
//
// Model 独占一个已加载的引擎实例，Prepare/Extract 负责宿主数据与引擎数据之间的转换，
// 所有失败在越过边界前都被归一化为四类 *Error 之一。
//
// 同一个 Model 上的调用由内部互斥锁串行化；不同 Model 之间完全独立。
package bridge

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/iabetor/ospeak/internal/config"
	"github.com/iabetor/ospeak/internal/engine"
	"github.com/iabetor/ospeak/internal/logger"
)

const instrumentationName = "github.com/iabetor/ospeak/internal/bridge"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	synthCalls, _    = meter.Int64Counter("ospeak.synthesize.calls", metric.WithDescription("合成调用次数，按结果分类"))
	synthDuration, _ = meter.Float64Histogram("ospeak.synthesize.duration", metric.WithUnit("s"))
)

// Model 拥有一个已加载的推理引擎实例。
type Model struct {
	mu      sync.Mutex
	eng     engine.Engine
	path    string
	backend string
	cleanup runtime.Cleanup
}

// Load 加载模型文件。cfg 为 nil 时引擎使用模型文件内嵌的默认配置。
// 失败时返回 KindLoad 错误，错误文本保留引擎原始诊断信息，且不会返回句柄。
func Load(path string, cfg *config.ModelConfig) (*Model, error) {
	norm := cfg.Normalize()

	eng, err := openEngine(path, norm)
	if err != nil {
		return nil, Translate(KindLoad, "加载模型", err)
	}

	m := &Model{eng: eng, path: path, backend: norm.Backend}
	// 宿主只丢弃引用而不调用 Close 时，由运行时回收原生引擎
	m.cleanup = runtime.AddCleanup(m, releaseEngine, eng)

	logger.Infof("[bridge] 模型已加载 (path=%s, backend=%s, sample_rate=%d)",
		path, norm.Backend, eng.SampleRate())
	return m, nil
}

func openEngine(path string, cfg *config.ModelConfig) (eng engine.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("引擎加载时崩溃: %v", r)
		}
	}()
	eng, err = engine.Open(path, cfg)
	if err == nil && eng == nil {
		err = fmt.Errorf("引擎没有返回实例")
	}
	return eng, err
}

func releaseEngine(eng engine.Engine) {
	if err := eng.Close(); err != nil {
		logger.Warnf("[bridge] 回收引擎失败: %v", err)
	}
}

// Path 返回模型文件路径。
func (m *Model) Path() string { return m.path }

// Backend 返回推理后端名称。
func (m *Model) Backend() string { return m.backend }

// SampleRate 返回输出音频采样率（Hz），模型已关闭时返回 0。
func (m *Model) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eng == nil {
		return 0
	}
	return m.eng.SampleRate()
}

// Synthesize 对整个批次执行一次推理并返回每行波形的副本。
func (m *Model) Synthesize(ctx context.Context, batch [][]int64, c engine.Controls) (*engine.Output, error) {
	var res *engine.Output
	err := m.run(ctx, batch, c, func(out *engine.Output) error {
		if out == nil {
			return newError(KindExtraction, "提取音频", "模型没有生成音频")
		}
		res = &engine.Output{
			Waveforms:  make([][]float32, len(out.Waveforms)),
			SampleRate: out.SampleRate,
		}
		for i, w := range out.Waveforms {
			res.Waveforms[i] = cloneSamples(w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Predict 合成并返回批次第一行的波形。
// 其余行的结果被丢弃；需要全部结果时使用 PredictBatch。
func (m *Model) Predict(ctx context.Context, ids [][]int64, d, p, e float64) ([]float32, error) {
	var wav []float32
	err := m.run(ctx, ids, engine.Controls{Duration: d, Pitch: p, Energy: e}, func(out *engine.Output) error {
		var err error
		wav, err = Extract(out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wav, nil
}

// PredictBatch 合成并按输入顺序返回每一行的波形。
func (m *Model) PredictBatch(ctx context.Context, ids [][]int64, d, p, e float64) ([][]float32, error) {
	var wavs [][]float32
	err := m.run(ctx, ids, engine.Controls{Duration: d, Pitch: p, Energy: e}, func(out *engine.Output) error {
		var err error
		wavs, err = ExtractAll(out, len(ids))
		return err
	})
	if err != nil {
		return nil, err
	}
	return wavs, nil
}

// run 持锁完成 准备输入 → 调用一次引擎 → 提取结果。
// 提取也在锁内进行，此时引擎还不会复用输出缓冲区。
func (m *Model) run(ctx context.Context, batch [][]int64, c engine.Controls, extract func(*engine.Output) error) (err error) {
	reqID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "ospeak.synthesize", trace.WithAttributes(
		attribute.String("ospeak.request_id", reqID),
		attribute.Int("ospeak.rows", len(batch)),
		attribute.Float64("ospeak.duration_factor", c.Duration),
		attribute.Float64("ospeak.pitch_factor", c.Pitch),
		attribute.Float64("ospeak.energy_factor", c.Energy),
	))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(attribute.String("result", result))
		synthCalls.Add(ctx, 1, attrs)
		synthDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		span.End()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eng == nil {
		return newError(KindSynthesis, "合成", "模型已关闭")
	}

	in, err := Prepare(batch, m.eng.PadID())
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("ospeak.width", in.Width))

	log := logger.With("request_id", reqID)
	log.Debugf("[bridge] 开始合成: rows=%d width=%d d=%.2f p=%.2f e=%.2f",
		in.Rows, in.Width, c.Duration, c.Pitch, c.Energy)

	out, err := invoke(m.eng, in, c)
	if err != nil {
		return Translate(KindSynthesis, "合成", err)
	}

	if err := extract(out); err != nil {
		return err
	}
	log.Debugf("[bridge] 合成完成，耗时 %v", time.Since(start))
	return nil
}

func invoke(eng engine.Engine, in engine.Input, c engine.Controls) (out *engine.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("引擎推理时崩溃: %v", r)
		}
	}()
	return eng.Synthesize(in, c)
}

// Close 释放引擎实例。重复调用无副作用，关闭后的合成调用返回 KindSynthesis 错误。
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eng == nil {
		return nil
	}
	m.cleanup.Stop()
	eng := m.eng
	m.eng = nil

	if err := eng.Close(); err != nil {
		return Translate(KindSynthesis, "释放模型", err)
	}
	logger.Infof("[bridge] 模型已释放: %s", m.path)
	return nil
}
