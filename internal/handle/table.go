// Package handle 把 Go 对象映射为可以交给 C 宿主的整数句柄。
package handle

import (
	"errors"
	"sync"
)

var (
	// ErrInvalid 表示句柄不存在或已被释放。
	ErrInvalid = errors.New("无效的句柄")
	// ErrFull 表示槽位编号已用尽。
	ErrFull = errors.New("句柄表已满")
)

// Handle 是交给宿主的不透明整数，0 永远无效。
type Handle uintptr

// 句柄高半部分是槽位代数，低半部分是槽位编号加一。
// 64 位平台各 32 位；32 位平台各 16 位，最多 65535 个同时存活的句柄。
const (
	ptrBits  = 32 << (^uintptr(0) >> 63)
	genShift = ptrBits / 2
	lowMask  = uint64(1)<<genShift - 1
)

type slot[T any] struct {
	value T
	gen   uint32
	valid bool
}

// Table 保存句柄到对象的映射，释放的槽位会被复用。
// 已释放的旧句柄不会误命中复用后的槽位（代数在回绕前都不同）。
type Table[T any] struct {
	mu       sync.RWMutex
	slots    []slot[T]
	freeList []int
}

// NewTable 创建空表。
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		slots:    make([]slot[T], 0, 8),
		freeList: make([]int, 0, 8),
	}
}

func pack(idx int, gen uint32) Handle {
	return Handle(uintptr(uint64(gen)&lowMask)<<genShift | uintptr(uint64(idx+1)&lowMask))
}

func unpack(h Handle) (int, uint32) {
	v := uint64(h)
	return int(v&lowMask) - 1, uint32((v >> genShift) & lowMask)
}

// Insert 保存 v 并返回新句柄。
func (t *Table[T]) Insert(v T) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		s := &t.slots[idx]
		s.value = v
		s.valid = true
		return pack(idx, s.gen), nil
	}

	if uint64(len(t.slots)+1) > lowMask {
		return 0, ErrFull
	}
	t.slots = append(t.slots, slot[T]{value: v, valid: true})
	return pack(len(t.slots)-1, 0), nil
}

// Get 返回句柄对应的对象。
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	idx, gen := unpack(h)
	if h == 0 || idx < 0 || idx >= len(t.slots) {
		return zero, false
	}
	s := t.slots[idx]
	if !s.valid || s.gen != gen {
		return zero, false
	}
	return s.value, true
}

// Remove 释放句柄并返回原对象，槽位进入空闲列表。
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	idx, gen := unpack(h)
	if h == 0 || idx < 0 || idx >= len(t.slots) {
		return zero, ErrInvalid
	}
	s := &t.slots[idx]
	if !s.valid || s.gen != gen {
		return zero, ErrInvalid
	}

	v := s.value
	s.value = zero
	s.valid = false
	s.gen = uint32((uint64(s.gen) + 1) & lowMask)
	t.freeList = append(t.freeList, idx)
	return v, nil
}

// Len 返回有效句柄数量。
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots) - len(t.freeList)
}
