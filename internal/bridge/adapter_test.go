package bridge

import (
	"errors"
	"testing"

	"github.com/iabetor/ospeak/internal/engine"
)

func TestPrepare_PadsToLongestRow(t *testing.T) {
	in, err := Prepare([][]int64{{1, 5, 22}, {3}}, 0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if in.Rows != 2 || in.Width != 3 {
		t.Fatalf("shape: got %dx%d, want 2x3", in.Rows, in.Width)
	}
	want := []int64{1, 5, 22, 3, 0, 0}
	for i, v := range want {
		if in.IDs[i] != v {
			t.Errorf("IDs[%d]: got %d, want %d", i, in.IDs[i], v)
		}
	}
	if in.Lengths[0] != 3 || in.Lengths[1] != 1 {
		t.Errorf("Lengths: got %v, want [3 1]", in.Lengths)
	}
}

func TestPrepare_UsesPadSymbol(t *testing.T) {
	in, err := Prepare([][]int64{{4}, {8, 9}}, 99)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if got := in.Row(0); got[1] != 99 {
		t.Errorf("pad symbol: got %d, want 99", got[1])
	}
}

func TestPrepare_PreservesOrderAndLengths(t *testing.T) {
	tests := []struct {
		name string
		seqs [][]int64
	}{
		{"single", [][]int64{{7}}},
		{"equal", [][]int64{{1, 2}, {3, 4}, {5, 6}}},
		{"descending", [][]int64{{1, 2, 3, 4}, {5, 6}, {7}}},
		{"ascending", [][]int64{{1}, {2, 3}, {4, 5, 6, 7, 8}}},
		{"mixed", [][]int64{{9, 9}, {1, 2, 3, 4, 5, 6}, {0}, {4, 4, 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Prepare(tt.seqs, 0)
			if err != nil {
				t.Fatalf("Prepare failed: %v", err)
			}
			if in.Rows != len(tt.seqs) || len(in.Lengths) != len(tt.seqs) {
				t.Fatalf("rows: got %d (lengths %d), want %d", in.Rows, len(in.Lengths), len(tt.seqs))
			}
			if len(in.IDs) != in.Rows*in.Width {
				t.Fatalf("IDs length %d != %d*%d", len(in.IDs), in.Rows, in.Width)
			}
			for i, s := range tt.seqs {
				if in.Lengths[i] > int64(in.Width) {
					t.Errorf("row %d: length %d exceeds width %d", i, in.Lengths[i], in.Width)
				}
				if in.Lengths[i] != int64(len(s)) {
					t.Errorf("row %d: length %d, want %d", i, in.Lengths[i], len(s))
				}
				row := in.Row(i)
				for j, v := range s {
					if row[j] != v {
						t.Errorf("row %d col %d: got %d, want %d", i, j, row[j], v)
					}
				}
			}
		})
	}
}

func TestPrepare_DoesNotAliasCallerData(t *testing.T) {
	seq := []int64{1, 2, 3}
	in, err := Prepare([][]int64{seq}, 0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	in.IDs[0] = 42
	if seq[0] != 1 {
		t.Error("Prepare output aliases the caller's slice")
	}
}

func TestPrepare_RejectsEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		seqs [][]int64
	}{
		{"nil batch", nil},
		{"empty batch", [][]int64{}},
		{"only row empty", [][]int64{{}}},
		{"first row empty", [][]int64{{}, {1, 2}}},
		{"last row empty", [][]int64{{1, 2}, {3}, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.seqs, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInput) {
				t.Errorf("expected input error, got %v", err)
			}
		})
	}
}

func TestExtract_FirstRowCopy(t *testing.T) {
	out := &engine.Output{Waveforms: [][]float32{{0.1, -0.2, 0.3}, {0.5}}}

	wav, err := Extract(out)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(wav) != 3 || wav[1] != -0.2 {
		t.Fatalf("Extract: got %v", wav)
	}

	// 引擎复用内部缓冲区时不能影响已返回的数据
	out.Waveforms[0][0] = 9
	if wav[0] != 0.1 {
		t.Error("returned buffer aliases engine memory")
	}
}

func TestExtract_NoAudio(t *testing.T) {
	for _, out := range []*engine.Output{nil, {}, {Waveforms: [][]float32{}}} {
		wav, err := Extract(out)
		if err == nil {
			t.Fatalf("expected extraction error, got %d samples", len(wav))
		}
		if !errors.Is(err, ErrExtraction) {
			t.Errorf("expected extraction error, got %v", err)
		}
		if errors.Is(err, ErrInput) {
			t.Error("extraction failure must be distinguishable from input failure")
		}
	}
}

func TestExtractAll(t *testing.T) {
	out := &engine.Output{Waveforms: [][]float32{{0.1}, {0.2, 0.2}, {0.3, 0.3, 0.3}}}

	all, err := ExtractAll(out, 3)
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}
	for i, w := range all {
		if len(w) != i+1 {
			t.Errorf("row %d: got %d samples, want %d", i, len(w), i+1)
		}
	}

	if _, err := ExtractAll(out, 4); !errors.Is(err, ErrExtraction) {
		t.Errorf("short output: expected extraction error, got %v", err)
	}
	if _, err := ExtractAll(&engine.Output{}, 1); !errors.Is(err, ErrExtraction) {
		t.Errorf("empty output: expected extraction error, got %v", err)
	}
}
