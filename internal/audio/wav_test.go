package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWriteReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	samples := make([]float32, 2205)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(float64(i)*0.1))
	}

	if err := WriteWAV(path, samples, 22050); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	got, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 22050 {
		t.Errorf("sample rate: got %d, want 22050", rate)
	}
	if len(got) != len(samples) {
		t.Fatalf("length: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		// int16 量化误差
		if diff := math.Abs(float64(got[i] - samples[i])); diff > 1e-3 {
			t.Fatalf("sample %d: got %f, want %f", i, got[i], samples[i])
		}
	}
}

func TestWriteWAV_InvalidRate(t *testing.T) {
	if err := WriteWAV(filepath.Join(t.TempDir(), "x.wav"), []float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestReadWAV_Missing(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
