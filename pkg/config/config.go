package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gogpu/ptxc/pkg/nvptx"
)

type Feature int

const (
	FeatShortPointers Feature = iota
	FeatFastFMA
	FeatUnsafeMath
	FeatAssumeNoNaN
	FeatAssumeNoInf
	FeatPIC
	FeatCount
)

type Warning int

const (
	WarnClampCapability Warning = iota
	WarnClampDialect
	WarnFallbackJIT
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	// ComputeCapability is the requested SM architecture, e.g. 70 for sm_70.
	ComputeCapability int
	// ToolkitVersion is the CUDA toolkit version in driver encoding,
	// e.g. 11030 for 11.3.
	ToolkitVersion int
	// Assembler overrides the PTX assembler binary. Empty means "ptxas".
	Assembler string
	// Opt is the code generation optimization level.
	Opt nvptx.OptLevel
}

func NewConfig() *Config {
	cfg := &Config{
		Features:          make(map[Feature]Info),
		Warnings:          make(map[Warning]Info),
		FeatureMap:        make(map[string]Feature),
		WarningMap:        make(map[string]Warning),
		ComputeCapability: 70,
		ToolkitVersion:    11030,
		Opt:               nvptx.OptAggressive,
	}

	features := map[Feature]Info{
		FeatShortPointers: {"short-ptr", true, "Use 32-bit pointers for the shared, const and local address spaces."},
		FeatFastFMA:       {"fast-fma", true, "Allow fusing separate multiply and add operations into fma."},
		FeatUnsafeMath:    {"unsafe-math", false, "Allow approximate floating-point operations such as div.approx."},
		FeatAssumeNoNaN:   {"assume-no-nan", true, "Assume floating-point operands are never NaN."},
		FeatAssumeNoInf:   {"assume-no-inf", false, "Assume floating-point operands are never infinite."},
		FeatPIC:           {"pic", true, "Generate position independent code."},
	}

	warnings := map[Warning]Info{
		WarnClampCapability: {"clamp-capability", true, "Warn when the requested compute capability exceeds the back end ceiling."},
		WarnClampDialect:    {"clamp-dialect", true, "Warn when the requested PTX ISA version exceeds the back end ceiling."},
		WarnFallbackJIT:     {"fallback-jit", true, "Warn when no PTX assembler is found and the driver JIT is used instead."},
		WarnExtra:           {"extra", false, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetArch parses an architecture argument such as "sm_70" or "70".
func (c *Config) SetArch(arch string) error {
	v, err := strconv.Atoi(strings.TrimPrefix(arch, "sm_"))
	if err != nil || v <= 0 {
		return errors.Errorf("invalid architecture %q, expected the form sm_70", arch)
	}
	c.ComputeCapability = v
	return nil
}

// SetToolkit parses a toolkit version argument. Accepted forms are
// "11.3" (major.minor) and the driver encoding "11030".
func (c *Config) SetToolkit(toolkit string) error {
	if major, minor, ok := strings.Cut(toolkit, "."); ok {
		ma, err := strconv.Atoi(major)
		if err != nil {
			return errors.Errorf("invalid toolkit version %q", toolkit)
		}
		mi, err := strconv.Atoi(minor)
		if err != nil || mi < 0 || mi > 9 {
			return errors.Errorf("invalid toolkit version %q", toolkit)
		}
		c.ToolkitVersion = ma*1000 + mi*10
		return nil
	}
	v, err := strconv.Atoi(toolkit)
	if err != nil || v <= 0 {
		return errors.Errorf("invalid toolkit version %q", toolkit)
	}
	c.ToolkitVersion = v
	return nil
}

// MachineOptions translates the feature set into target machine options.
func (c *Config) MachineOptions() nvptx.Options {
	opts := nvptx.Options{
		Reloc:         nvptx.RelocStatic,
		Opt:           c.Opt,
		FPFusion:      nvptx.FPFusionStandard,
		UnsafeFPMath:  c.IsFeatureEnabled(FeatUnsafeMath),
		NoNaNsFPMath:  c.IsFeatureEnabled(FeatAssumeNoNaN),
		NoInfsFPMath:  c.IsFeatureEnabled(FeatAssumeNoInf),
		ShortPointers: c.IsFeatureEnabled(FeatShortPointers),
	}
	if c.IsFeatureEnabled(FeatPIC) {
		opts.Reloc = nvptx.RelocPIC
	}
	if c.IsFeatureEnabled(FeatFastFMA) {
		opts.FPFusion = nvptx.FPFusionFast
	}
	return opts
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W and -F flags in two passes so "-Wall" never
// overrides an individually toggled warning, regardless of flag order.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}
