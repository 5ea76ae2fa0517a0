package nvptx

import (
	"errors"
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// identityModule builds a kernel that copies one i32 from a global input
// pointer to a global output pointer.
func identityModule() *ir.Module {
	m := ir.NewModule()
	out := types.NewPointer(types.I32)
	out.AddrSpace = 1
	in := types.NewPointer(types.I32)
	in.AddrSpace = 1
	f := m.NewFunc("identity", types.Void, ir.NewParam("out", out), ir.NewParam("in", in))
	b := f.NewBlock("")
	v := b.NewLoad(types.I32, f.Params[1])
	b.NewStore(v, f.Params[0])
	b.NewRet(nil)
	return m
}

func TestEmitIdentityKernel(t *testing.T) {
	ptx, err := Emit(identityModule(), 70, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	if n := strings.Count(ptx, ".version"); n != 1 {
		t.Errorf("got %d .version directives, want 1\n%s", n, ptx)
	}
	if !strings.Contains(ptx, ".version 7.3\n") {
		t.Errorf("missing .version 7.3 directive\n%s", ptx)
	}
	if n := strings.Count(ptx, ".target"); n != 1 {
		t.Errorf("got %d .target directives, want 1\n%s", n, ptx)
	}
	if !strings.Contains(ptx, ".target sm_70\n") {
		t.Errorf("missing .target sm_70 directive\n%s", ptx)
	}

	for _, want := range []string{
		".address_size 64",
		".visible .entry identity(",
		"ld.param.u64",
		"ld.global.u32",
		"st.global.u32",
		"ret;",
	} {
		if !strings.Contains(ptx, want) {
			t.Errorf("missing %q in emitted PTX\n%s", want, ptx)
		}
	}
}

func TestEmitDirectivesCarryRequestedValues(t *testing.T) {
	// Capability 80 exceeds the back end ceiling; code generation clamps to
	// sm_75 internally but the directive must advertise sm_80.
	ptx, err := Emit(identityModule(), 80, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if !strings.Contains(ptx, ".target sm_80\n") {
		t.Errorf("missing .target sm_80 directive\n%s", ptx)
	}
	if strings.Contains(ptx, "sm_75") {
		t.Errorf("internal clamped architecture leaked into output\n%s", ptx)
	}
}

func TestEmitUnsupportedToolkit(t *testing.T) {
	_, err := Emit(identityModule(), 70, 9999)
	if !errors.Is(err, ErrUnsupportedToolkit) {
		t.Fatalf("Emit() error = %v, want ErrUnsupportedToolkit", err)
	}
}

func TestEmitBrokenModule(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("broken", types.Void)
	f.NewBlock("")

	_, err := Emit(m, 70, 11030)
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Emit() error = %v, want *VerifyError", err)
	}
}

func TestEmitSelectLowering(t *testing.T) {
	m := ir.NewModule()
	out := types.NewPointer(types.I32)
	out.AddrSpace = 1
	in := types.NewPointer(types.I32)
	in.AddrSpace = 1
	f := m.NewFunc("pick", types.Void, ir.NewParam("out", out), ir.NewParam("in", in))
	b := f.NewBlock("")
	v := b.NewLoad(types.I32, f.Params[1])
	cond := b.NewICmp(enum.IPredSLT, v, constant.NewInt(types.I32, 0))
	sel := b.NewSelect(cond, constant.NewInt(types.I32, 1), constant.NewInt(types.I32, 2))
	b.NewStore(sel, f.Params[0])
	b.NewRet(nil)

	ptx, err := Emit(m, 70, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if !strings.Contains(ptx, "setp.lt.s32") {
		t.Errorf("missing setp.lt.s32 for the condition\n%s", ptx)
	}
	// The true operand comes before the false operand.
	if !strings.Contains(ptx, "selp.b32 %r2, 1, 2, %p1;") {
		t.Errorf("missing selp.b32 with ordered operands\n%s", ptx)
	}
}

func TestEmitSwapPhiCopies(t *testing.T) {
	// Two phis swap on the back edge; the copies must be resolved as a
	// parallel assignment, not applied in order.
	m := ir.NewModule()
	out := types.NewPointer(types.I32)
	out.AddrSpace = 1
	f := m.NewFunc("swap_loop", types.Void, ir.NewParam("out", out))
	entry := f.NewBlock("")
	loop := f.NewBlock("loop")
	exit := f.NewBlock("exit")
	entry.NewBr(loop)

	a := loop.NewPhi(ir.NewIncoming(constant.NewInt(types.I32, 1), entry))
	bv := loop.NewPhi(ir.NewIncoming(constant.NewInt(types.I32, 2), entry))
	a.Incs = append(a.Incs, ir.NewIncoming(bv, loop))
	bv.Incs = append(bv.Incs, ir.NewIncoming(a, loop))
	loop.NewStore(a, f.Params[0])
	cond := loop.NewICmp(enum.IPredEQ, a, bv)
	loop.NewCondBr(cond, exit, loop)
	exit.NewRet(nil)

	ptx, err := Emit(m, 70, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	for _, want := range []string{
		"mov.b32 %r3, %r2;",
		"mov.b32 %r2, %r1;",
		"mov.b32 %r1, %r3;",
	} {
		if !strings.Contains(ptx, want) {
			t.Errorf("missing %q in swap copy sequence\n%s", want, ptx)
		}
	}
	// A direct overwrite would lose the first phi's value.
	if strings.Contains(ptx, "mov.b32 %r1, %r2;") {
		t.Errorf("first phi overwritten before its value was read\n%s", ptx)
	}
}

func TestEmitContractedMultiplyAdd(t *testing.T) {
	build := func() *ir.Module {
		m := ir.NewModule()
		out := types.NewPointer(types.Float)
		out.AddrSpace = 1
		in := types.NewPointer(types.Float)
		in.AddrSpace = 1
		f := m.NewFunc("axpy", types.Void, ir.NewParam("out", out), ir.NewParam("in", in))
		b := f.NewBlock("")
		v := b.NewLoad(types.Float, f.Params[1])
		prod := b.NewFMul(v, v)
		sum := b.NewFAdd(prod, v)
		b.NewStore(sum, f.Params[0])
		b.NewRet(nil)
		return m
	}

	ptx, err := Emit(build(), 70, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if !strings.Contains(ptx, "fma.rn.f32") {
		t.Errorf("fast contraction did not fuse multiply and add\n%s", ptx)
	}

	opts := DefaultOptions()
	opts.FPFusion = FPFusionStandard
	ptx, err = EmitWithOptions(build(), 70, 11030, opts)
	if err != nil {
		t.Fatalf("EmitWithOptions() error: %v", err)
	}
	if strings.Contains(ptx, "fma.rn") {
		t.Errorf("standard fusion mode emitted a fused multiply-add\n%s", ptx)
	}
	if !strings.Contains(ptx, "add.rn.f32") {
		t.Errorf("missing plain add.rn.f32 under standard fusion\n%s", ptx)
	}
}

func TestEmitNarrowIntegerOps(t *testing.T) {
	// i8 values live in 16-bit registers; arithmetic and logic use the
	// 16-bit forms, only loads and stores keep the byte width.
	m := ir.NewModule()
	out := types.NewPointer(types.I8)
	out.AddrSpace = 1
	in := types.NewPointer(types.I8)
	in.AddrSpace = 1
	f := m.NewFunc("bytes", types.Void, ir.NewParam("out", out), ir.NewParam("in", in))
	b := f.NewBlock("")
	v := b.NewLoad(types.I8, f.Params[1])
	sum := b.NewAdd(v, v)
	masked := b.NewAnd(sum, constant.NewInt(types.I8, 15))
	b.NewStore(masked, f.Params[0])
	b.NewRet(nil)

	ptx, err := Emit(m, 70, 11030)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	for _, want := range []string{"ld.global.u8", "add.s16", "and.b16", "st.global.u8"} {
		if !strings.Contains(ptx, want) {
			t.Errorf("missing %q in emitted PTX\n%s", want, ptx)
		}
	}
	for _, bad := range []string{"add.s8", "and.b8", "mov.b8"} {
		if strings.Contains(ptx, bad) {
			t.Errorf("emitted unsupported byte-width form %q\n%s", bad, ptx)
		}
	}
}

func TestEmitThreadIndexIntrinsic(t *testing.T) {
	m := ir.NewModule()
	tid := m.NewFunc("llvm.nvvm.read.ptx.sreg.tid.x", types.I32)
	out := types.NewPointer(types.I32)
	out.AddrSpace = 1
	f := m.NewFunc("grab_tid", types.Void, ir.NewParam("out", out))
	b := f.NewBlock("")
	v := b.NewCall(tid)
	b.NewStore(v, f.Params[0])
	b.NewRet(nil)

	ptx, err := Emit(m, 75, 11020)
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if !strings.Contains(ptx, "%tid.x") {
		t.Errorf("missing %%tid.x special register read\n%s", ptx)
	}
	if !strings.Contains(ptx, "mov.u32") {
		t.Errorf("special register read did not lower to mov.u32\n%s", ptx)
	}
	if strings.Contains(ptx, "call.uni") {
		t.Errorf("intrinsic lowered as a real call\n%s", ptx)
	}
}
