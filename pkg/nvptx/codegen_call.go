package nvptx

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
)

func (e *fnEmitter) emitCall(in *ir.InstCall) error {
	switch callee := in.Callee.(type) {
	case *ir.InlineAsm:
		return e.emitInlineAsm(in, callee)
	case *ir.Func:
		if strings.HasPrefix(callee.Name(), "llvm.") {
			return e.emitIntrinsic(in, callee.Name())
		}
		return e.emitDirectCall(in, callee)
	}
	return errors.Errorf("unsupported call target %T", in.Callee)
}

// Special registers exposed through the NVVM read intrinsics.
var sregNames = map[string]bool{
	"tid.x": true, "tid.y": true, "tid.z": true,
	"ntid.x": true, "ntid.y": true, "ntid.z": true,
	"ctaid.x": true, "ctaid.y": true, "ctaid.z": true,
	"nctaid.x": true, "nctaid.y": true, "nctaid.z": true,
	"laneid": true, "warpsize": true,
}

func (e *fnEmitter) emitIntrinsic(in *ir.InstCall, name string) error {
	if sreg, ok := strings.CutPrefix(name, "llvm.nvvm.read.ptx.sreg."); ok {
		if !sregNames[sreg] {
			return errors.Errorf("unknown special register %q", sreg)
		}
		e.emitf("mov.u32 %s, %%%s;", e.regs[in], sreg)
		return nil
	}
	if name == "llvm.nvvm.barrier0" {
		e.emitf("bar.sync 0;")
		return nil
	}

	unary := func(op string) error {
		x, err := e.operand(in.Args[0])
		if err != nil {
			return err
		}
		e.emitf("%s %s, %s;", op, e.regs[in], x)
		return nil
	}
	switch name {
	case "llvm.sqrt.f32":
		if e.g.machine.opts.UnsafeFPMath {
			return unary("sqrt.approx.f32")
		}
		return unary("sqrt.rn.f32")
	case "llvm.sqrt.f64":
		return unary("sqrt.rn.f64")
	case "llvm.fabs.f32":
		return unary("abs.f32")
	case "llvm.fabs.f64":
		return unary("abs.f64")
	case "llvm.floor.f32":
		return unary("cvt.rmi.f32.f32")
	case "llvm.ceil.f32":
		return unary("cvt.rpi.f32.f32")
	case "llvm.fma.f32", "llvm.fma.f64":
		suffix, err := floatSuffix(in.Type())
		if err != nil {
			return err
		}
		a, err := e.operand(in.Args[0])
		if err != nil {
			return err
		}
		b, err := e.operand(in.Args[1])
		if err != nil {
			return err
		}
		c, err := e.operand(in.Args[2])
		if err != nil {
			return err
		}
		e.emitf("fma.rn.%s %s, %s, %s, %s;", suffix, e.regs[in], a, b, c)
		return nil
	}
	return errors.Errorf("unsupported intrinsic %s", name)
}

// emitDirectCall lowers a call to a device function using the ABI's param
// space. Parameters and the return slot live in a nested scope so their names
// cannot collide across call sites.
func (e *fnEmitter) emitDirectCall(in *ir.InstCall, callee *ir.Func) error {
	_, void := callee.Sig.RetType.(*types.VoidType)

	e.raw("\t{")
	var params []string
	for i, arg := range in.Args {
		bits := paramBits(arg.Type())
		name := fmt.Sprintf("param%d", i)
		src, err := e.operand(arg)
		if err != nil {
			return err
		}
		e.emitf(".param .b%d %s;", bits, name)
		e.emitf("st.param.b%d [%s+0], %s;", bits, name, src)
		params = append(params, name)
	}
	if !void {
		e.emitf(".param .b%d retval0;", paramBits(callee.Sig.RetType))
		e.emitf("call.uni (retval0), %s, (%s);", callee.Name(), strings.Join(params, ", "))
		e.emitf("ld.param.b%d %s, [retval0+0];", paramBits(callee.Sig.RetType), e.regs[in])
	} else {
		e.emitf("call.uni %s, (%s);", callee.Name(), strings.Join(params, ", "))
	}
	e.raw("\t}")
	return nil
}

// emitInlineAsm pastes the caller-provided assembly between begin/end marker
// comments, substituting $N operand placeholders with the bound registers.
// The markers are stripped again after module post-processing.
func (e *fnEmitter) emitInlineAsm(in *ir.InstCall, ia *ir.InlineAsm) error {
	var ops []string
	if _, void := in.Type().(*types.VoidType); !void {
		ops = append(ops, e.regs[in])
	}
	for _, arg := range in.Args {
		op, err := e.operand(arg)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	text := ia.Asm
	for i := len(ops) - 1; i >= 0; i-- {
		text = strings.ReplaceAll(text, fmt.Sprintf("$%d", i), ops[i])
	}

	e.raw("\t// begin inline asm")
	for _, line := range strings.Split(text, "\n") {
		e.raw("\t" + strings.TrimSpace(line))
	}
	e.raw("\t// end inline asm")
	return nil
}
