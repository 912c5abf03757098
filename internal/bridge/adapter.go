package bridge

import (
	"github.com/iabetor/ospeak/internal/engine"
)

// Prepare 将调用方提交的符号序列整理为引擎期望的补齐批量输入。
// 每个序列占一行，按批次内最长序列补齐，Lengths 按提交顺序记录每行真实长度。
// 空批次或任意空行返回 KindInput 错误。
func Prepare(seqs [][]int64, pad int64) (engine.Input, error) {
	if len(seqs) == 0 {
		return engine.Input{}, newError(KindInput, "准备输入", "批次为空")
	}

	width := 0
	for i, s := range seqs {
		if len(s) == 0 {
			return engine.Input{}, newError(KindInput, "准备输入", "第 %d 行为空序列", i)
		}
		if len(s) > width {
			width = len(s)
		}
	}

	in := engine.Input{
		IDs:     make([]int64, len(seqs)*width),
		Rows:    len(seqs),
		Width:   width,
		Lengths: make([]int64, len(seqs)),
	}
	for i, s := range seqs {
		row := in.Row(i)
		n := copy(row, s)
		for j := n; j < width; j++ {
			row[j] = pad
		}
		in.Lengths[i] = int64(len(s))
	}
	return in, nil
}

// Extract 返回批次第一行的波形副本。
// 引擎返回零条结果时报告 KindExtraction，与输入校验错误区分。
func Extract(out *engine.Output) ([]float32, error) {
	if out == nil || len(out.Waveforms) == 0 {
		return nil, newError(KindExtraction, "提取音频", "模型没有生成音频")
	}
	return cloneSamples(out.Waveforms[0]), nil
}

// ExtractAll 按输入顺序返回每一行的波形副本。
func ExtractAll(out *engine.Output, rows int) ([][]float32, error) {
	if out == nil || len(out.Waveforms) == 0 {
		return nil, newError(KindExtraction, "提取音频", "模型没有生成音频")
	}
	if len(out.Waveforms) < rows {
		return nil, newError(KindExtraction, "提取音频", "模型只生成了 %d 条音频，期望 %d 条", len(out.Waveforms), rows)
	}
	all := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		all[i] = cloneSamples(out.Waveforms[i])
	}
	return all, nil
}

// cloneSamples 复制样本，交给宿主的缓冲区不与引擎内部内存共享。
func cloneSamples(in []float32) []float32 {
	out := make([]float32, len(in))
	copy(out, in)
	return out
}
