package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/ospeak/internal/logger"
)

// Play 通过默认扬声器播放单声道 float32 样本，阻塞直到播放完成或 ctx 被取消。
func Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	feed := &pcmFeeder{pcm: float32ToF32LE(samples)}
	done := make(chan struct{}, 1)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			if feed.fill(out[:int(frameCount)*4]) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debugf("[audio] 播放完成: %d 个样本", len(samples))
		return nil
	}
}

// pcmFeeder 按设备回调的节奏把 PCM 字节写入输出缓冲区。
type pcmFeeder struct {
	pcm     []byte
	pos     int
	drained bool
}

// fill 填满 out，不足部分补静音。返回 true 表示最后一段数据已经被设备取走：
// 写入最后一段的那次回调之后还需要再等一次回调，否则 Stop 会截掉最后一个周期。
func (f *pcmFeeder) fill(out []byte) bool {
	n := copy(out, f.pcm[f.pos:])
	f.pos += n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if f.pos < len(f.pcm) {
		return false
	}
	if f.drained {
		return true
	}
	f.drained = true
	return false
}

// float32ToF32LE 把样本钳位后编码为小端 float32 字节，供 FormatF32 设备使用。
func float32ToF32LE(in []float32) []byte {
	out := make([]byte, len(in)*4)
	for i, s := range in {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(clamp(s)))
	}
	return out
}
