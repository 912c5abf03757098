package bridge

import (
	"errors"
	"fmt"

	"github.com/iabetor/ospeak/internal/logger"
)

// Kind 是宿主可见的错误类别。
type Kind string

const (
	KindLoad       Kind = "load"       // 模型文件无法使用
	KindInput      Kind = "input"      // 调用方输入非法，可换输入重试
	KindSynthesis  Kind = "synthesis"  // 引擎推理失败
	KindExtraction Kind = "extraction" // 引擎没有产出音频
)

// Code 返回类别对应的稳定整数码，供 C ABI 使用。0 保留给成功。
func (k Kind) Code() int {
	switch k {
	case KindLoad:
		return 1
	case KindInput:
		return 2
	case KindSynthesis:
		return 3
	case KindExtraction:
		return 4
	default:
		return 3
	}
}

// Error 是越过宿主边界的唯一错误类型。
// 只保存由底层错误生成的文本，不持有引擎的原生错误值。
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("[%s] %s失败", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s失败: %s", e.Kind, e.Op, e.Msg)
}

// Is 按类别匹配，使 errors.Is(err, ErrInput) 等判断成立。
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// 用于 errors.Is 判断的哨兵值。
var (
	ErrLoad       = &Error{Kind: KindLoad}
	ErrInput      = &Error{Kind: KindInput}
	ErrSynthesis  = &Error{Kind: KindSynthesis}
	ErrExtraction = &Error{Kind: KindExtraction}
)

// KindOf 返回 err 的类别；非 *Error 的错误一律视为 KindSynthesis。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSynthesis
}

// Translate 将任意失败归一化为指定类别的 *Error。
// 已经是 *Error 的值原样返回，保持最初的类别。
func Translate(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	logger.Warnf("[bridge] %s失败 (%s): %v", op, kind, err)
	return &Error{Kind: kind, Op: op, Msg: err.Error()}
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}
