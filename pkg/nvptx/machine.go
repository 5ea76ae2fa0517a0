package nvptx

import (
	"strconv"
	"strings"
)

// RelocMode selects the relocation model for generated code.
type RelocMode uint8

const (
	RelocStatic RelocMode = iota
	RelocPIC
)

// OptLevel selects the code generation optimization level.
type OptLevel uint8

const (
	OptNone OptLevel = iota
	OptLess
	OptDefault
	OptAggressive
)

// FPFusion controls whether separate multiply and add operations may be fused
// into a single fma.
type FPFusion uint8

const (
	FPFusionStandard FPFusion = iota
	FPFusionFast
)

// Options configures a target machine. ShortPointers is threaded through here
// per invocation rather than living in any process-wide flag, so concurrent
// emissions with different settings do not interfere.
//
// Reloc and Opt are recorded for callers that inspect the machine but do not
// change the emitted text: the generated code is position independent either
// way, and the instruction selector has a single code path. FPFusion,
// UnsafeFPMath and ShortPointers all steer emission.
type Options struct {
	Reloc         RelocMode
	Opt           OptLevel
	FPFusion      FPFusion
	UnsafeFPMath  bool
	NoNaNsFPMath  bool
	NoInfsFPMath  bool
	ShortPointers bool
}

// DefaultOptions returns the option set used for kernel lowering: position
// independent code, aggressive optimization, fast fma fusion, no unsafe math,
// NaNs assumed absent, infinities assumed possible, 32-bit specific-space
// pointers.
func DefaultOptions() Options {
	return Options{
		Reloc:         RelocPIC,
		Opt:           OptAggressive,
		FPFusion:      FPFusionFast,
		UnsafeFPMath:  false,
		NoNaNsFPMath:  true,
		NoInfsFPMath:  false,
		ShortPointers: true,
	}
}

// TargetMachine binds a registered target to a concrete processor, feature
// set and option block, and runs code emission over IR modules.
type TargetMachine struct {
	target   *Target
	cpu      string
	features string
	opts     Options
}

// CreateMachine builds a target machine for the given processor string (an
// architecture tag such as "sm_75") and feature string (such as "+ptx64").
func (t *Target) CreateMachine(cpu, features string, opts Options) *TargetMachine {
	return &TargetMachine{target: t, cpu: cpu, features: features, opts: opts}
}

// CPU reports the processor the machine generates code for.
func (m *TargetMachine) CPU() string { return m.cpu }

// PTXVersion reports the PTX ISA version encoded in the machine's feature
// string.
func (m *TargetMachine) PTXVersion() int {
	v, err := strconv.Atoi(strings.TrimPrefix(m.features, "+ptx"))
	if err != nil {
		return 0
	}
	return v
}

// DataLayout returns the layout string the module must adopt for this
// machine. No custom layouts are supported; callers always take this one.
func (m *TargetMachine) DataLayout() string {
	if m.target.AddressSize == 32 {
		return "e-p:32:32-i64:64-i128:128-v16:16-v32:32-n16:32:64"
	}
	if m.opts.ShortPointers {
		return "e-p3:32:32-p4:32:32-p5:32:32-i64:64-i128:128-v16:16-v32:32-n16:32:64"
	}
	return "e-i64:64-i128:128-v16:16-v32:32-n16:32:64"
}
