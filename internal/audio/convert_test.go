package audio

import (
	"math"
	"testing"
)

func TestInt16ToFloat32_Empty(t *testing.T) {
	out := Int16ToFloat32(nil)
	if len(out) != 0 {
		t.Fatalf("expected empty slice, got length %d", len(out))
	}
}

func TestInt16ToFloat32_MaxInt16(t *testing.T) {
	out := Int16ToFloat32([]int16{math.MaxInt16})
	if out[0] != 1.0 {
		t.Fatalf("expected 1.0 for MaxInt16, got %f", out[0])
	}
}

func TestFloat32ToInt16_Normal(t *testing.T) {
	out := Float32ToInt16([]float32{0.5, -0.5, 0})
	if out[2] != 0 {
		t.Fatalf("expected 0 for 0.0 input, got %d", out[2])
	}
	if out[0] <= 0 {
		t.Fatalf("expected positive for 0.5 input, got %d", out[0])
	}
	if out[1] >= 0 {
		t.Fatalf("expected negative for -0.5 input, got %d", out[1])
	}
}

func TestFloat32ToInt16_Clamp(t *testing.T) {
	out := Float32ToInt16([]float32{1.5, -1.5})
	if out[0] != math.MaxInt16 {
		t.Errorf("expected %d (clamped to 1.0), got %d", math.MaxInt16, out[0])
	}
	if out[1] != -math.MaxInt16 {
		t.Errorf("expected %d (clamped to -1.0), got %d", -math.MaxInt16, out[1])
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		in   []float32
		want float32
	}{
		{nil, 0},
		{[]float32{0.1, -0.7, 0.3}, 0.7},
		{[]float32{0.9}, 0.9},
	}
	for _, tt := range tests {
		if got := Peak(tt.in); got != tt.want {
			t.Errorf("Peak(%v): got %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(22050, 22050); got != 1.0 {
		t.Errorf("Duration: got %f, want 1.0", got)
	}
	if got := Duration(100, 0); got != 0 {
		t.Errorf("Duration with zero rate: got %f, want 0", got)
	}
}

func TestFloat32ToF32LE(t *testing.T) {
	out := float32ToF32LE([]float32{0.25, 2.0})
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(out))
	}
	// 0.25 = 0x3E800000
	if out[0] != 0x00 || out[1] != 0x00 || out[2] != 0x80 || out[3] != 0x3E {
		t.Errorf("0.25 encoded as % x", out[:4])
	}
	// 2.0 被钳位到 1.0 = 0x3F800000
	if out[6] != 0x80 || out[7] != 0x3F {
		t.Errorf("clamped 1.0 encoded as % x", out[4:])
	}
}
