package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/iabetor/ospeak/internal/audio"
	"github.com/iabetor/ospeak/internal/bridge"
	"github.com/iabetor/ospeak/internal/config"
	_ "github.com/iabetor/ospeak/internal/engine/onnx"
	_ "github.com/iabetor/ospeak/internal/engine/sherpa"
	"github.com/iabetor/ospeak/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选，为空则使用模型内嵌默认值）")
	modelPath := flag.String("model", "", "模型文件路径")
	idsFlag := flag.String("ids", "", "符号 ID，行内用逗号分隔，行之间用分号分隔，如 \"1,5,22;3\"")
	dFactor := flag.Float64("d", 1.0, "时长倍率")
	pFactor := flag.Float64("p", 1.0, "音高倍率")
	eFactor := flag.Float64("e", 1.0, "能量倍率")
	outPath := flag.String("out", "out.wav", "输出 WAV 路径；-all 时作为文件名前缀")
	all := flag.Bool("all", false, "输出批次中每一行的音频")
	play := flag.Bool("play", false, "合成后通过默认扬声器播放")
	trace := flag.Bool("trace", false, "把合成调用的 trace 打印到 stdout")
	flag.Parse()

	if *modelPath == "" || *idsFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	var modelCfg *config.ModelConfig
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		if err := logger.Init(logger.Config{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		modelCfg = &cfg.Model
	}

	ids, err := parseIDs(*idsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "解析 -ids 失败: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	shutdown := func(context.Context) error { return nil }
	if *trace {
		if shutdown, err = setupTracing(); err != nil {
			fmt.Fprintf(os.Stderr, "初始化 trace 失败: %v\n", err)
			os.Exit(1)
		}
	}

	code := run(ctx, *modelPath, modelCfg, ids, *dFactor, *pFactor, *eFactor, *outPath, *all, *play)

	// os.Exit 不执行 defer，退出前手动刷新
	_ = shutdown(ctx)
	logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context, modelPath string, cfg *config.ModelConfig, ids [][]int64,
	d, p, e float64, outPath string, all, play bool) int {
	m, err := bridge.Load(modelPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitCode(err)
	}
	defer m.Close()

	var wavs [][]float32
	if all {
		wavs, err = m.PredictBatch(ctx, ids, d, p, e)
	} else {
		var wav []float32
		wav, err = m.Predict(ctx, ids, d, p, e)
		wavs = [][]float32{wav}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitCode(err)
	}

	sr := m.SampleRate()
	for i, wav := range wavs {
		path := outPath
		if all {
			path = rowPath(outPath, i)
		}
		if err := audio.WriteWAV(path, wav, sr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败: %v\n", path, err)
			return 1
		}
		logger.Infof("[main] %s: %d 个样本, %.2fs, peak=%.3f",
			path, len(wav), audio.Duration(len(wav), sr), audio.Peak(wav))

		if play {
			if err := audio.Play(ctx, wav, sr); err != nil {
				logger.Warnf("[main] 播放失败: %v", err)
			}
		}
	}
	return 0
}

// exitCode 让脚本可以根据退出码区分错误类别。
func exitCode(err error) int {
	return 10 + bridge.KindOf(err).Code()
}

func rowPath(outPath string, row int) string {
	ext := filepath.Ext(outPath)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(outPath, ext), row, ext)
}

func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
