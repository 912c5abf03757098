package main

import (
	"fmt"
	"math"

	"github.com/iabetor/ospeak/internal/bridge"
)

const (
	codeOK            = 0
	codeInvalidHandle = 5
)

// maxTotalIDs 是一次调用所有行 ID 总数的上限。
const maxTotalIDs = math.MaxInt32

// totalLength 校验每行长度并求和，总和不超过 maxTotalIDs。
func totalLength(lengths []int64) (int, error) {
	var total int64
	for i, l := range lengths {
		if l < 0 {
			return 0, bridge.Translate(bridge.KindInput, "准备输入", fmt.Errorf("第 %d 行长度为负数: %d", i, l))
		}
		if l > maxTotalIDs-total {
			return 0, bridge.Translate(bridge.KindInput, "准备输入",
				fmt.Errorf("第 %d 行长度 %d 使 ID 总数超过上限 %d", i, l, maxTotalIDs))
		}
		total += l
	}
	return int(total), nil
}

// panicError 把导出函数中恢复的 panic 转成合成错误，避免崩溃传到宿主进程。
func panicError(r interface{}) error {
	return bridge.Translate(bridge.KindSynthesis, "调用", fmt.Errorf("调用时崩溃: %v", r))
}

// splitRows 按 lengths 把首尾相接的 ID 切成独立的行，每行都是新分配的切片。
// 空行原样保留，由桥接层统一报告输入错误。
func splitRows(flat []int64, lengths []int64) ([][]int64, error) {
	total, err := totalLength(lengths)
	if err != nil {
		return nil, err
	}
	if len(flat) < total {
		return nil, bridge.Translate(bridge.KindInput, "准备输入",
			fmt.Errorf("ID 数量 %d 少于各行长度之和 %d", len(flat), total))
	}

	rows := make([][]int64, len(lengths))
	off := 0
	for i, l := range lengths {
		row := make([]int64, l)
		copy(row, flat[off:off+int(l)])
		rows[i] = row
		off += int(l)
	}
	return rows, nil
}

// flatten 把多行音频首尾相接，并返回每行的样本数。
func flatten(wavs [][]float32) ([]float32, []int) {
	total := 0
	sizes := make([]int, len(wavs))
	for i, w := range wavs {
		sizes[i] = len(w)
		total += len(w)
	}
	flat := make([]float32, 0, total)
	for _, w := range wavs {
		flat = append(flat, w...)
	}
	return flat, sizes
}
