package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/iabetor/ospeak/internal/config"
)

type nopEngine struct{ pad int64 }

func (e *nopEngine) Synthesize(Input, Controls) (*Output, error) { return &Output{}, nil }
func (e *nopEngine) SampleRate() int                            { return 16000 }
func (e *nopEngine) PadID() int64                               { return e.pad }
func (e *nopEngine) Close() error                               { return nil }

func TestOpen_UsesRegisteredBackend(t *testing.T) {
	var gotPath string
	var gotCfg *config.ModelConfig
	Register("engine-test", func(path string, cfg *config.ModelConfig) (Engine, error) {
		gotPath, gotCfg = path, cfg
		return &nopEngine{pad: cfg.PadID}, nil
	})

	eng, err := Open("/models/a.onnx", &config.ModelConfig{Backend: "engine-test", PadID: 7})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if gotPath != "/models/a.onnx" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotCfg.NumThreads != 1 {
		t.Errorf("opener should receive normalized config, NumThreads=%d", gotCfg.NumThreads)
	}
	if eng.PadID() != 7 {
		t.Errorf("PadID: got %d, want 7", eng.PadID())
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("/models/a.onnx", &config.ModelConfig{Backend: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "does-not-exist") {
		t.Errorf("error should name the backend: %v", err)
	}
}

func TestOpen_PropagatesOpenerError(t *testing.T) {
	want := errors.New("bad magic")
	Register("engine-test-fail", func(string, *config.ModelConfig) (Engine, error) {
		return nil, want
	})
	_, err := Open("x", &config.ModelConfig{Backend: "engine-test-fail"})
	if !errors.Is(err, want) {
		t.Fatalf("expected opener error, got %v", err)
	}
}

func TestBackends_Sorted(t *testing.T) {
	Register("zz-test", func(string, *config.ModelConfig) (Engine, error) { return nil, nil })
	Register("aa-test", func(string, *config.ModelConfig) (Engine, error) { return nil, nil })

	names := Backends()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Backends not sorted: %v", names)
		}
	}
}

func TestInput_Row(t *testing.T) {
	in := Input{IDs: []int64{1, 5, 22, 3, 0, 0}, Rows: 2, Width: 3, Lengths: []int64{3, 1}}
	if r := in.Row(1); len(r) != 3 || r[0] != 3 || r[1] != 0 {
		t.Errorf("Row(1): got %v", r)
	}
}

func TestDefaultControls(t *testing.T) {
	c := DefaultControls()
	if c.Duration != 1 || c.Pitch != 1 || c.Energy != 1 {
		t.Errorf("DefaultControls: got %+v", c)
	}
}
