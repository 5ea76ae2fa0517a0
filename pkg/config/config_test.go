package config

import (
	"testing"

	"github.com/gogpu/ptxc/pkg/nvptx"
)

func TestSetArch(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.SetArch("sm_80"); err != nil {
		t.Fatalf("SetArch(sm_80) error: %v", err)
	}
	if cfg.ComputeCapability != 80 {
		t.Errorf("ComputeCapability = %d, want 80", cfg.ComputeCapability)
	}
	if err := cfg.SetArch("75"); err != nil {
		t.Fatalf("SetArch(75) error: %v", err)
	}
	if cfg.ComputeCapability != 75 {
		t.Errorf("ComputeCapability = %d, want 75", cfg.ComputeCapability)
	}
	if err := cfg.SetArch("turing"); err == nil {
		t.Error("SetArch(turing) succeeded, want error")
	}
}

func TestSetToolkit(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"11.3", 11030},
		{"11.0", 11000},
		{"10.2", 10020},
		{"11030", 11030},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		if err := cfg.SetToolkit(tt.in); err != nil {
			t.Errorf("SetToolkit(%q) error: %v", tt.in, err)
			continue
		}
		if cfg.ToolkitVersion != tt.want {
			t.Errorf("SetToolkit(%q): ToolkitVersion = %d, want %d", tt.in, cfg.ToolkitVersion, tt.want)
		}
	}
	for _, bad := range []string{"", "eleven", "11.x", "-3"} {
		cfg := NewConfig()
		if err := cfg.SetToolkit(bad); err == nil {
			t.Errorf("SetToolkit(%q) succeeded, want error", bad)
		}
	}
}

func TestMachineOptionsDefaults(t *testing.T) {
	opts := NewConfig().MachineOptions()
	want := nvptx.Options{
		Reloc:         nvptx.RelocPIC,
		Opt:           nvptx.OptAggressive,
		FPFusion:      nvptx.FPFusionFast,
		UnsafeFPMath:  false,
		NoNaNsFPMath:  true,
		NoInfsFPMath:  false,
		ShortPointers: true,
	}
	if opts != want {
		t.Errorf("MachineOptions() = %+v, want %+v", opts, want)
	}
}

func TestFeatureFlags(t *testing.T) {
	cfg := NewConfig()
	cfg.applyFlag("-Funsafe-math")
	cfg.applyFlag("-Fno-short-ptr")
	if !cfg.IsFeatureEnabled(FeatUnsafeMath) {
		t.Error("-Funsafe-math did not enable the feature")
	}
	if cfg.IsFeatureEnabled(FeatShortPointers) {
		t.Error("-Fno-short-ptr did not disable the feature")
	}

	opts := cfg.MachineOptions()
	if !opts.UnsafeFPMath || opts.ShortPointers {
		t.Errorf("MachineOptions() = %+v does not reflect the toggled features", opts)
	}
}

func TestProcessFlagsWallOrdering(t *testing.T) {
	// -Wall must not override an individual -Wno- toggle, even when it
	// appears later on the command line.
	cfg := NewConfig()
	flags := []string{"Wno-fallback-jit", "Wall"}
	cfg.ProcessFlags(func(fn func(name string)) {
		for _, f := range flags {
			fn(f)
		}
	})
	if cfg.IsWarningEnabled(WarnFallbackJIT) {
		t.Error("-Wall overrode -Wno-fallback-jit")
	}
	if !cfg.IsWarningEnabled(WarnExtra) {
		t.Error("-Wall did not enable the extra warnings")
	}
}
