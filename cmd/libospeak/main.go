// libospeak 以 C ABI 动态库的形式把 ospeak 暴露给脚本宿主（Python ctypes/cffi、Lua FFI 等）。
//
// 构建:
//
//	go build -buildmode=c-shared -o libospeak.so ./cmd/libospeak
//
// 所有返回 int 的函数: 0 成功，1 加载失败，2 输入非法，3 合成失败，4 没有生成音频，5 句柄无效。
// 失败时若 err 非 NULL，*err 指向一段需要用 ospeak_free_string 释放的错误文本。
// 音频缓冲区由本库 malloc 分配，所有权转移给调用方，用 ospeak_free_samples 释放。
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/iabetor/ospeak/internal/bridge"
	"github.com/iabetor/ospeak/internal/config"
	_ "github.com/iabetor/ospeak/internal/engine/onnx"
	_ "github.com/iabetor/ospeak/internal/engine/sherpa"
	"github.com/iabetor/ospeak/internal/handle"
	"github.com/iabetor/ospeak/internal/logger"
)

var models = handle.NewTable[*bridge.Model]()

func main() {}

func setError(errMsg **C.char, msg string) {
	if errMsg != nil {
		*errMsg = C.CString(msg)
	}
}

func fail(err error, errMsg **C.char) C.int {
	setError(errMsg, err.Error())
	return C.int(bridge.KindOf(err).Code())
}

// recoverCall 必须直接 defer 调用。
func recoverCall(errMsg **C.char, code *C.int) {
	if r := recover(); r != nil {
		*code = fail(panicError(r), errMsg)
	}
}

func lookup(h C.uintptr_t, errMsg **C.char) (*bridge.Model, bool) {
	m, ok := models.Get(handle.Handle(h))
	if !ok {
		setError(errMsg, handle.ErrInvalid.Error())
	}
	return m, ok
}

//export ospeak_configure_logging
func ospeak_configure_logging(level *C.char, file *C.char, errMsg **C.char) C.int {
	cfg := logger.Config{Level: C.GoString(level)}
	if file != nil {
		cfg.File = C.GoString(file)
	}
	if err := logger.Init(cfg); err != nil {
		setError(errMsg, err.Error())
		return C.int(bridge.KindInput.Code())
	}
	return codeOK
}

//export ospeak_load
func ospeak_load(modelPath *C.char, configPath *C.char, out *C.uintptr_t, errMsg **C.char) (code C.int) {
	defer recoverCall(errMsg, &code)
	if modelPath == nil || out == nil {
		setError(errMsg, "model_path 和 out 不能为空")
		return C.int(bridge.KindLoad.Code())
	}

	var cfg *config.ModelConfig
	if configPath != nil {
		mc, err := config.LoadModelConfig(C.GoString(configPath))
		if err != nil {
			return fail(bridge.Translate(bridge.KindLoad, "读取模型配置", err), errMsg)
		}
		cfg = mc
	}

	m, err := bridge.Load(C.GoString(modelPath), cfg)
	if err != nil {
		return fail(err, errMsg)
	}
	h, err := models.Insert(m)
	if err != nil {
		m.Close()
		return fail(bridge.Translate(bridge.KindLoad, "分配句柄", err), errMsg)
	}
	*out = C.uintptr_t(h)
	return codeOK
}

//export ospeak_predict
func ospeak_predict(h C.uintptr_t, ids *C.int64_t, lengths *C.int64_t, rows C.int,
	d, p, e C.double, out **C.float, n *C.size_t, errMsg **C.char) (code C.int) {
	defer recoverCall(errMsg, &code)
	m, ok := lookup(h, errMsg)
	if !ok {
		return codeInvalidHandle
	}
	if out == nil || n == nil {
		setError(errMsg, "out 和 n 不能为空")
		return C.int(bridge.KindInput.Code())
	}

	batch, err := hostBatch(ids, lengths, rows)
	if err != nil {
		return fail(err, errMsg)
	}

	wav, err := m.Predict(context.Background(), batch, float64(d), float64(p), float64(e))
	if err != nil {
		return fail(err, errMsg)
	}

	*out = toCSamples(wav)
	*n = C.size_t(len(wav))
	return codeOK
}

// ospeak_predict_batch 返回全部行的音频，按输入顺序首尾相接；
// counts 由调用方提供，长度为 rows，返回时填入每行的样本数。
//
//export ospeak_predict_batch
func ospeak_predict_batch(h C.uintptr_t, ids *C.int64_t, lengths *C.int64_t, rows C.int,
	d, p, e C.double, out **C.float, counts *C.size_t, errMsg **C.char) (code C.int) {
	defer recoverCall(errMsg, &code)
	m, ok := lookup(h, errMsg)
	if !ok {
		return codeInvalidHandle
	}
	if out == nil || counts == nil {
		setError(errMsg, "out 和 counts 不能为空")
		return C.int(bridge.KindInput.Code())
	}

	batch, err := hostBatch(ids, lengths, rows)
	if err != nil {
		return fail(err, errMsg)
	}

	wavs, err := m.PredictBatch(context.Background(), batch, float64(d), float64(p), float64(e))
	if err != nil {
		return fail(err, errMsg)
	}

	flat, sizes := flatten(wavs)
	*out = toCSamples(flat)
	cs := unsafe.Slice(counts, len(sizes))
	for i, s := range sizes {
		cs[i] = C.size_t(s)
	}
	return codeOK
}

//export ospeak_sample_rate
func ospeak_sample_rate(h C.uintptr_t) C.int {
	m, ok := models.Get(handle.Handle(h))
	if !ok {
		return 0
	}
	return C.int(m.SampleRate())
}

//export ospeak_release
func ospeak_release(h C.uintptr_t) {
	m, err := models.Remove(handle.Handle(h))
	if err != nil {
		return
	}
	if err := m.Close(); err != nil {
		logger.Warnf("[libospeak] 释放模型失败: %v", err)
	}
}

//export ospeak_free_samples
func ospeak_free_samples(samples *C.float) {
	C.free(unsafe.Pointer(samples))
}

//export ospeak_free_string
func ospeak_free_string(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// hostBatch 把宿主内存中的扁平 ID 数组复制成 Go 的行切片，之后不再引用宿主内存。
func hostBatch(ids *C.int64_t, lengths *C.int64_t, rows C.int) ([][]int64, error) {
	if rows <= 0 || lengths == nil {
		return splitRows(nil, nil)
	}
	lens := unsafe.Slice((*int64)(unsafe.Pointer(lengths)), int(rows))
	total, err := totalLength(lens)
	if err != nil {
		return nil, err
	}
	if total == 0 || ids == nil {
		return splitRows(nil, lens)
	}
	flat := unsafe.Slice((*int64)(unsafe.Pointer(ids)), total)
	return splitRows(flat, lens)
}

// toCSamples 把样本复制到 C 堆上，调用方负责释放。
func toCSamples(samples []float32) *C.float {
	if len(samples) == 0 {
		return nil
	}
	size := C.size_t(len(samples)) * C.size_t(unsafe.Sizeof(C.float(0)))
	buf := (*C.float)(C.malloc(size))
	copy(unsafe.Slice((*float32)(unsafe.Pointer(buf)), len(samples)), samples)
	return buf
}
