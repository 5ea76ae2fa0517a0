package nvptx

import (
	"fmt"
	"math"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// EmitAssembly runs the code emission pipeline over the module and returns
// the PTX text. The module is read, not mutated.
func (m *TargetMachine) EmitAssembly(mod *ir.Module) (string, error) {
	g := &generator{machine: m, mod: mod}
	return g.run()
}

type generator struct {
	machine *TargetMachine
	mod     *ir.Module
	out     strings.Builder
}

func (g *generator) run() (string, error) {
	fmt.Fprintf(&g.out, "//\n// Generated by ptxc (NVPTX back end)\n//\n\n")
	fmt.Fprintf(&g.out, ".version %s\n", DialectString(g.machine.PTXVersion()))
	fmt.Fprintf(&g.out, ".target %s\n", g.machine.CPU())
	fmt.Fprintf(&g.out, ".address_size %d\n\n", g.machine.target.AddressSize)

	for _, gv := range g.mod.Globals {
		if err := g.emitGlobal(gv); err != nil {
			return "", err
		}
	}

	for i, f := range g.mod.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		fe := &fnEmitter{
			g:         g,
			f:         f,
			index:     i,
			regs:      make(map[value.Value]string),
			counts:    make(map[string]int),
			labels:    make(map[*ir.Block]string),
			phiCopies: make(map[*ir.Block][]phiCopy),
		}
		if err := fe.emit(); err != nil {
			return "", errors.Wrapf(err, "function %s", f.Name())
		}
	}
	return g.out.String(), nil
}

func (g *generator) emitGlobal(gv *ir.Global) error {
	space := ".global"
	if gv.Typ != nil {
		switch gv.Typ.AddrSpace {
		case 3:
			space = ".shared"
		case 4:
			space = ".const"
		}
	}
	align := alignOf(gv.ContentType)
	switch init := gv.Init.(type) {
	case nil:
		fmt.Fprintf(&g.out, ".extern %s .align %d .b8 %s[%d];\n", space, align, gv.Name(), sizeOf(gv.ContentType))
	case *constant.Int:
		fmt.Fprintf(&g.out, "%s .align %d .u%d %s = %s;\n", space, align, init.Typ.BitSize, gv.Name(), init.X.String())
	case *constant.Float:
		lit, err := floatLiteral(init)
		if err != nil {
			return err
		}
		suffix := "f32"
		if init.Typ.Kind == types.FloatKindDouble {
			suffix = "f64"
		}
		fmt.Fprintf(&g.out, "%s .align %d .%s %s = %s;\n", space, align, suffix, gv.Name(), lit)
	case *constant.CharArray:
		var vals []string
		for _, b := range init.X {
			vals = append(vals, fmt.Sprintf("%d", b))
		}
		fmt.Fprintf(&g.out, "%s .align %d .b8 %s[%d] = {%s};\n", space, align, gv.Name(), len(init.X), strings.Join(vals, ", "))
	default:
		fmt.Fprintf(&g.out, "%s .align %d .b8 %s[%d];\n", space, align, gv.Name(), sizeOf(gv.ContentType))
	}
	return nil
}

type phiCopy struct {
	dst string
	cls string
	src value.Value
}

type localSlot struct {
	name  string
	size  int64
	align int64
}

type fnEmitter struct {
	g         *generator
	f         *ir.Func
	index     int
	kernel    bool
	regs      map[value.Value]string
	counts    map[string]int
	labels    map[*ir.Block]string
	phiCopies map[*ir.Block][]phiCopy
	locals    []localSlot
	body      strings.Builder
}

// Kernels are void-returning definitions; everything else compiles as a
// device function.
func isKernel(f *ir.Func) bool {
	if len(f.Blocks) == 0 {
		return false
	}
	_, void := f.Sig.RetType.(*types.VoidType)
	return void
}

func (e *fnEmitter) emit() error {
	e.kernel = isKernel(e.f)

	if err := e.assignRegs(); err != nil {
		return err
	}
	e.collectPhiCopies()
	for i, b := range e.f.Blocks {
		e.labels[b] = fmt.Sprintf("$L__BB%d_%d", e.index, i)
	}

	if err := e.emitParamLoads(); err != nil {
		return err
	}
	for i, b := range e.f.Blocks {
		if i > 0 {
			fmt.Fprintf(&e.body, "%s:\n", e.labels[b])
		}
		for _, inst := range b.Insts {
			if err := e.emitInst(inst); err != nil {
				return err
			}
		}
		if err := e.emitPhiCopies(b); err != nil {
			return err
		}
		if err := e.emitTerm(b.Term); err != nil {
			return err
		}
	}

	e.writeSignature()
	e.writeRegDecls()
	for _, slot := range e.locals {
		fmt.Fprintf(&e.g.out, "\t.local .align %d .b8 %s[%d];\n", slot.align, slot.name, slot.size)
	}
	e.g.out.WriteString(e.body.String())
	e.g.out.WriteString("}\n\n")
	return nil
}

func (e *fnEmitter) writeSignature() {
	out := &e.g.out
	if e.kernel {
		fmt.Fprintf(out, ".visible .entry %s(\n", e.f.Name())
		for i, p := range e.f.Params {
			suffix, _ := memSuffix(p.Type())
			fmt.Fprintf(out, "\t.param .%s %s_param_%d", suffix, e.f.Name(), i)
			if i < len(e.f.Params)-1 {
				out.WriteString(",")
			}
			out.WriteString("\n")
		}
		out.WriteString(")\n{\n")
		return
	}
	if _, void := e.f.Sig.RetType.(*types.VoidType); !void {
		fmt.Fprintf(out, ".func (.param .b%d func_retval0) %s(\n", paramBits(e.f.Sig.RetType), e.f.Name())
	} else {
		fmt.Fprintf(out, ".func %s(\n", e.f.Name())
	}
	for i, p := range e.f.Params {
		fmt.Fprintf(out, "\t.param .b%d %s_param_%d", paramBits(p.Type()), e.f.Name(), i)
		if i < len(e.f.Params)-1 {
			out.WriteString(",")
		}
		out.WriteString("\n")
	}
	out.WriteString(")\n{\n")
}

var regDirectives = []struct{ cls, dir string }{
	{"p", ".pred"},
	{"rs", ".b16"},
	{"r", ".b32"},
	{"rd", ".b64"},
	{"f", ".f32"},
	{"fd", ".f64"},
}

func (e *fnEmitter) writeRegDecls() {
	for _, rd := range regDirectives {
		if n := e.counts[rd.cls]; n > 0 {
			fmt.Fprintf(&e.g.out, "\t.reg %s %%%s<%d>;\n", rd.dir, rd.cls, n+1)
		}
	}
	e.g.out.WriteString("\n")
}

func (e *fnEmitter) assignRegs() error {
	for _, p := range e.f.Params {
		cls, err := classify(p.Type())
		if err != nil {
			return err
		}
		e.regs[p] = e.newReg(cls)
	}
	for _, b := range e.f.Blocks {
		for _, inst := range b.Insts {
			v, ok := inst.(value.Value)
			if !ok {
				continue
			}
			if _, void := v.Type().(*types.VoidType); void {
				continue
			}
			cls, err := classify(v.Type())
			if err != nil {
				return err
			}
			e.regs[v] = e.newReg(cls)
		}
	}
	return nil
}

func (e *fnEmitter) collectPhiCopies() {
	for _, b := range e.f.Blocks {
		for _, inst := range b.Insts {
			phi, ok := inst.(*ir.InstPhi)
			if !ok {
				continue
			}
			cls, err := classify(phi.Type())
			if err != nil {
				continue
			}
			for _, inc := range phi.Incs {
				pred := asBlock(inc.Pred)
				if pred == nil {
					continue
				}
				e.phiCopies[pred] = append(e.phiCopies[pred], phiCopy{
					dst: e.regs[phi],
					cls: cls,
					src: inc.X,
				})
			}
		}
	}
}

// emitPhiCopies writes the phi moves pending on the edge out of b. The copies
// form a parallel assignment: a destination register may also be the source of
// another copy, so a copy is only emitted once no pending copy still reads its
// destination. Cycles (swap phis) are broken by routing one source through a
// scratch register.
func (e *fnEmitter) emitPhiCopies(b *ir.Block) error {
	type pending struct {
		dst string
		cls string
		src string
	}
	var work []pending
	for _, cp := range e.phiCopies[b] {
		src, err := e.operand(cp.src)
		if err != nil {
			return err
		}
		work = append(work, pending{dst: cp.dst, cls: cp.cls, src: src})
	}
	for len(work) > 0 {
		emitted := false
		for i, cp := range work {
			blocked := false
			for j, other := range work {
				if j != i && other.src == cp.dst {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			if cp.src != cp.dst {
				e.emitf("mov.%s %s, %s;", movSuffix(cp.cls), cp.dst, cp.src)
			}
			work = append(work[:i], work[i+1:]...)
			emitted = true
			break
		}
		if emitted {
			continue
		}
		// Every remaining copy reads another's destination, so the set is a
		// cycle. Spill one source to a scratch register and retry.
		cp := work[0]
		tmp := e.newReg(cp.cls)
		e.emitf("mov.%s %s, %s;", movSuffix(cp.cls), tmp, cp.src)
		for i := range work {
			if work[i].src == cp.src {
				work[i].src = tmp
			}
		}
	}
	return nil
}

func (e *fnEmitter) emitParamLoads() error {
	for i, p := range e.f.Params {
		suffix, err := memSuffix(p.Type())
		if err != nil {
			return errors.Wrapf(err, "parameter %d", i)
		}
		if e.kernel {
			e.emitf("ld.param.%s %s, [%s_param_%d];", suffix, e.regs[p], e.f.Name(), i)
		} else {
			e.emitf("ld.param.b%d %s, [%s_param_%d];", paramBits(p.Type()), e.regs[p], e.f.Name(), i)
		}
	}
	return nil
}

func (e *fnEmitter) newReg(cls string) string {
	e.counts[cls]++
	return fmt.Sprintf("%%%s%d", cls, e.counts[cls])
}

func (e *fnEmitter) emitf(format string, args ...interface{}) {
	fmt.Fprintf(&e.body, "\t"+format+"\n", args...)
}

func (e *fnEmitter) raw(line string) {
	e.body.WriteString(line)
	e.body.WriteString("\n")
}

func (e *fnEmitter) operand(v value.Value) (string, error) {
	if r, ok := e.regs[v]; ok {
		return r, nil
	}
	switch c := v.(type) {
	case *constant.Int:
		return c.X.String(), nil
	case *constant.Float:
		return floatLiteral(c)
	case *constant.Null:
		return "0", nil
	case *ir.Global:
		return c.Name(), nil
	case *ir.Func:
		return c.Name(), nil
	}
	return "", errors.Errorf("unsupported operand %T", v)
}

func floatLiteral(c *constant.Float) (string, error) {
	f, _ := c.X.Float64()
	switch c.Typ.Kind {
	case types.FloatKindFloat:
		return fmt.Sprintf("0f%08X", math.Float32bits(float32(f))), nil
	case types.FloatKindDouble:
		return fmt.Sprintf("0d%016X", math.Float64bits(f)), nil
	}
	return "", errors.Errorf("unsupported float kind %v", c.Typ.Kind)
}

// asBlock unwraps a block reference regardless of how the IR value is typed.
func asBlock(v interface{}) *ir.Block {
	b, _ := v.(*ir.Block)
	return b
}

func (e *fnEmitter) emitInst(inst ir.Instruction) error {
	switch in := inst.(type) {
	case *ir.InstAlloca:
		return e.emitAlloca(in)
	case *ir.InstLoad:
		return e.emitLoad(in)
	case *ir.InstStore:
		return e.emitStore(in)
	case *ir.InstAdd:
		return e.intBinary(in, in.X, in.Y, "add")
	case *ir.InstSub:
		return e.intBinary(in, in.X, in.Y, "sub")
	case *ir.InstMul:
		return e.intBinary(in, in.X, in.Y, "mul.lo")
	case *ir.InstSDiv:
		return e.intBinary(in, in.X, in.Y, "div")
	case *ir.InstUDiv:
		return e.uintBinary(in, in.X, in.Y, "div")
	case *ir.InstSRem:
		return e.intBinary(in, in.X, in.Y, "rem")
	case *ir.InstURem:
		return e.uintBinary(in, in.X, in.Y, "rem")
	case *ir.InstAnd:
		return e.bitBinary(in, in.X, in.Y, "and")
	case *ir.InstOr:
		return e.bitBinary(in, in.X, in.Y, "or")
	case *ir.InstXor:
		return e.bitBinary(in, in.X, in.Y, "xor")
	case *ir.InstShl:
		return e.bitBinary(in, in.X, in.Y, "shl")
	case *ir.InstLShr:
		return e.uintBinary(in, in.X, in.Y, "shr")
	case *ir.InstAShr:
		return e.intBinary(in, in.X, in.Y, "shr")
	case *ir.InstFAdd:
		return e.emitFAdd(in)
	case *ir.InstFSub:
		return e.floatBinary(in, in.X, in.Y, "sub")
	case *ir.InstFMul:
		return e.floatBinary(in, in.X, in.Y, "mul")
	case *ir.InstFDiv:
		return e.emitFDiv(in)
	case *ir.InstFNeg:
		return e.emitFNeg(in)
	case *ir.InstICmp:
		return e.emitICmp(in)
	case *ir.InstFCmp:
		return e.emitFCmp(in)
	case *ir.InstZExt:
		return e.emitExt(in, in.From, in.To, false)
	case *ir.InstSExt:
		return e.emitExt(in, in.From, in.To, true)
	case *ir.InstTrunc:
		return e.emitTrunc(in)
	case *ir.InstFPExt:
		return e.emitConv(in, in.From, "cvt.f64.f32")
	case *ir.InstFPTrunc:
		return e.emitConv(in, in.From, "cvt.rn.f32.f64")
	case *ir.InstSIToFP:
		return e.emitIntFloatConv(in, in.From, in.To, true, true)
	case *ir.InstUIToFP:
		return e.emitIntFloatConv(in, in.From, in.To, false, true)
	case *ir.InstFPToSI:
		return e.emitIntFloatConv(in, in.From, in.To, true, false)
	case *ir.InstFPToUI:
		return e.emitIntFloatConv(in, in.From, in.To, false, false)
	case *ir.InstPtrToInt:
		return e.emitBitMove(in, in.From)
	case *ir.InstIntToPtr:
		return e.emitBitMove(in, in.From)
	case *ir.InstBitCast:
		return e.emitBitMove(in, in.From)
	case *ir.InstAddrSpaceCast:
		return e.emitAddrSpaceCast(in)
	case *ir.InstGetElementPtr:
		return e.emitGEP(in)
	case *ir.InstSelect:
		return e.emitSelect(in)
	case *ir.InstPhi:
		// Lowered as register copies at the end of each predecessor.
		return nil
	case *ir.InstCall:
		return e.emitCall(in)
	}
	return errors.Errorf("unsupported instruction %T", inst)
}

func (e *fnEmitter) emitAlloca(in *ir.InstAlloca) error {
	n := int64(1)
	if in.NElems != nil {
		c, ok := in.NElems.(*constant.Int)
		if !ok {
			return errors.New("alloca with a dynamic element count is not supported")
		}
		n = c.X.Int64()
	}
	slot := localSlot{
		name:  fmt.Sprintf("__local_depot%d_%d", e.index, len(e.locals)),
		size:  sizeOf(in.ElemType) * n,
		align: alignOf(in.ElemType),
	}
	e.locals = append(e.locals, slot)
	dst := e.regs[in]
	e.emitf("mov.u64 %s, %s;", dst, slot.name)
	e.emitf("cvta.local.u64 %s, %s;", dst, dst)
	return nil
}

// space maps a pointer's address space to a ld/st qualifier. Generic
// addressing has no qualifier.
func space(t types.Type) string {
	p, ok := t.(*types.PointerType)
	if !ok {
		return ""
	}
	switch p.AddrSpace {
	case 1:
		return ".global"
	case 3:
		return ".shared"
	case 4:
		return ".const"
	case 5:
		return ".local"
	}
	return ""
}

func spaceName(t types.Type) string {
	s := space(t)
	if s == "" {
		return ""
	}
	return strings.TrimPrefix(s, ".")
}

func (e *fnEmitter) emitLoad(in *ir.InstLoad) error {
	suffix, err := memSuffix(in.ElemType)
	if err != nil {
		return err
	}
	addr, err := e.operand(in.Src)
	if err != nil {
		return err
	}
	e.emitf("ld%s.%s %s, [%s];", space(in.Src.Type()), suffix, e.regs[in], addr)
	return nil
}

func (e *fnEmitter) emitStore(in *ir.InstStore) error {
	suffix, err := memSuffix(in.Src.Type())
	if err != nil {
		return err
	}
	src, err := e.operand(in.Src)
	if err != nil {
		return err
	}
	addr, err := e.operand(in.Dst)
	if err != nil {
		return err
	}
	e.emitf("st%s.%s [%s], %s;", space(in.Dst.Type()), suffix, addr, src)
	return nil
}

func (e *fnEmitter) binaryOperands(x, y value.Value) (string, string, error) {
	a, err := e.operand(x)
	if err != nil {
		return "", "", err
	}
	b, err := e.operand(y)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (e *fnEmitter) intBinary(dst value.Value, x, y value.Value, op string) error {
	suffix, err := intSuffix(dst.Type(), true)
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(x, y)
	if err != nil {
		return err
	}
	e.emitf("%s.%s %s, %s, %s;", op, suffix, e.regs[dst], a, b)
	return nil
}

func (e *fnEmitter) uintBinary(dst value.Value, x, y value.Value, op string) error {
	suffix, err := intSuffix(dst.Type(), false)
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(x, y)
	if err != nil {
		return err
	}
	e.emitf("%s.%s %s, %s, %s;", op, suffix, e.regs[dst], a, b)
	return nil
}

func (e *fnEmitter) bitBinary(dst value.Value, x, y value.Value, op string) error {
	bits, err := intBits(dst.Type())
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(x, y)
	if err != nil {
		return err
	}
	e.emitf("%s.b%d %s, %s, %s;", op, opBits(bits), e.regs[dst], a, b)
	return nil
}

func (e *fnEmitter) floatBinary(dst value.Value, x, y value.Value, op string) error {
	suffix, err := floatSuffix(dst.Type())
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(x, y)
	if err != nil {
		return err
	}
	e.emitf("%s.rn.%s %s, %s, %s;", op, suffix, e.regs[dst], a, b)
	return nil
}

// emitFAdd lowers a float add. With fast contraction an add fed by a multiply
// becomes a single fused fma.rn; the feeding multiply still emits its own
// result for any other users.
func (e *fnEmitter) emitFAdd(in *ir.InstFAdd) error {
	if e.g.machine.opts.FPFusion == FPFusionFast {
		if mul, ok := in.X.(*ir.InstFMul); ok && mul.Type().Equal(in.Type()) {
			return e.emitFMA(in, mul, in.Y)
		}
		if mul, ok := in.Y.(*ir.InstFMul); ok && mul.Type().Equal(in.Type()) {
			return e.emitFMA(in, mul, in.X)
		}
	}
	return e.floatBinary(in, in.X, in.Y, "add")
}

func (e *fnEmitter) emitFMA(dst value.Value, mul *ir.InstFMul, addend value.Value) error {
	suffix, err := floatSuffix(dst.Type())
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(mul.X, mul.Y)
	if err != nil {
		return err
	}
	c, err := e.operand(addend)
	if err != nil {
		return err
	}
	e.emitf("fma.rn.%s %s, %s, %s, %s;", suffix, e.regs[dst], a, b, c)
	return nil
}

func (e *fnEmitter) emitFDiv(in *ir.InstFDiv) error {
	suffix, err := floatSuffix(in.Type())
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(in.X, in.Y)
	if err != nil {
		return err
	}
	mode := "rn"
	if e.g.machine.opts.UnsafeFPMath && suffix == "f32" {
		mode = "approx"
	}
	e.emitf("div.%s.%s %s, %s, %s;", mode, suffix, e.regs[in], a, b)
	return nil
}

func (e *fnEmitter) emitFNeg(in *ir.InstFNeg) error {
	suffix, err := floatSuffix(in.Type())
	if err != nil {
		return err
	}
	x, err := e.operand(in.X)
	if err != nil {
		return err
	}
	e.emitf("neg.%s %s, %s;", suffix, e.regs[in], x)
	return nil
}

var iPredOps = map[enum.IPred]struct {
	op     string
	signed bool
}{
	enum.IPredEQ:  {"eq", true},
	enum.IPredNE:  {"ne", true},
	enum.IPredSLT: {"lt", true},
	enum.IPredSLE: {"le", true},
	enum.IPredSGT: {"gt", true},
	enum.IPredSGE: {"ge", true},
	enum.IPredULT: {"lt", false},
	enum.IPredULE: {"le", false},
	enum.IPredUGT: {"gt", false},
	enum.IPredUGE: {"ge", false},
}

func (e *fnEmitter) emitICmp(in *ir.InstICmp) error {
	pred, ok := iPredOps[in.Pred]
	if !ok {
		return errors.Errorf("unsupported integer comparison predicate %v", in.Pred)
	}
	suffix, err := intSuffix(in.X.Type(), pred.signed)
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(in.X, in.Y)
	if err != nil {
		return err
	}
	e.emitf("setp.%s.%s %s, %s, %s;", pred.op, suffix, e.regs[in], a, b)
	return nil
}

var fPredOps = map[enum.FPred]string{
	enum.FPredOEQ: "eq",
	enum.FPredONE: "ne",
	enum.FPredOLT: "lt",
	enum.FPredOLE: "le",
	enum.FPredOGT: "gt",
	enum.FPredOGE: "ge",
	enum.FPredUEQ: "equ",
	enum.FPredUNE: "neu",
	enum.FPredULT: "ltu",
	enum.FPredULE: "leu",
	enum.FPredUGT: "gtu",
	enum.FPredUGE: "geu",
	enum.FPredORD: "num",
	enum.FPredUNO: "nan",
}

func (e *fnEmitter) emitFCmp(in *ir.InstFCmp) error {
	op, ok := fPredOps[in.Pred]
	if !ok {
		return errors.Errorf("unsupported float comparison predicate %v", in.Pred)
	}
	suffix, err := floatSuffix(in.X.Type())
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(in.X, in.Y)
	if err != nil {
		return err
	}
	e.emitf("setp.%s.%s %s, %s, %s;", op, suffix, e.regs[in], a, b)
	return nil
}

func (e *fnEmitter) emitExt(dst value.Value, from value.Value, to types.Type, signed bool) error {
	src, err := e.operand(from)
	if err != nil {
		return err
	}
	toBits, err := intBits(to)
	if err != nil {
		return err
	}
	fromBits, err := intBits(from.Type())
	if err != nil {
		return err
	}
	if fromBits == 1 {
		one := "1"
		if signed {
			one = "-1"
		}
		e.emitf("selp.b%d %s, %s, 0, %s;", opBits(toBits), e.regs[dst], one, src)
		return nil
	}
	k := byte('u')
	if signed {
		k = 's'
	}
	e.emitf("cvt.%c%d.%c%d %s, %s;", k, toBits, k, fromBits, e.regs[dst], src)
	return nil
}

func (e *fnEmitter) emitTrunc(in *ir.InstTrunc) error {
	src, err := e.operand(in.From)
	if err != nil {
		return err
	}
	fromBits, err := intBits(in.From.Type())
	if err != nil {
		return err
	}
	toBits, err := intBits(in.To)
	if err != nil {
		return err
	}
	if toBits == 1 {
		tmp := e.newReg(regClassForBits(fromBits))
		e.emitf("and.b%d %s, %s, 1;", opBits(fromBits), tmp, src)
		e.emitf("setp.ne.s%d %s, %s, 0;", opBits(fromBits), e.regs[in], tmp)
		return nil
	}
	e.emitf("cvt.u%d.u%d %s, %s;", toBits, fromBits, e.regs[in], src)
	return nil
}

func (e *fnEmitter) emitConv(dst value.Value, from value.Value, op string) error {
	src, err := e.operand(from)
	if err != nil {
		return err
	}
	e.emitf("%s %s, %s;", op, e.regs[dst], src)
	return nil
}

func (e *fnEmitter) emitIntFloatConv(dst value.Value, from value.Value, to types.Type, signed, toFloat bool) error {
	src, err := e.operand(from)
	if err != nil {
		return err
	}
	k := byte('u')
	if signed {
		k = 's'
	}
	if toFloat {
		fs, err := floatSuffix(to)
		if err != nil {
			return err
		}
		bits, err := intBits(from.Type())
		if err != nil {
			return err
		}
		e.emitf("cvt.rn.%s.%c%d %s, %s;", fs, k, bits, e.regs[dst], src)
		return nil
	}
	fs, err := floatSuffix(from.Type())
	if err != nil {
		return err
	}
	bits, err := intBits(to)
	if err != nil {
		return err
	}
	e.emitf("cvt.rzi.%c%d.%s %s, %s;", k, bits, fs, e.regs[dst], src)
	return nil
}

func (e *fnEmitter) emitBitMove(dst value.Value, from value.Value) error {
	src, err := e.operand(from)
	if err != nil {
		return err
	}
	e.emitf("mov.b%d %s, %s;", opBits(bitSize(dst.Type())), e.regs[dst], src)
	return nil
}

func (e *fnEmitter) emitAddrSpaceCast(in *ir.InstAddrSpaceCast) error {
	src, err := e.operand(in.From)
	if err != nil {
		return err
	}
	fromSpace := spaceName(in.From.Type())
	toSpace := spaceName(in.To)
	switch {
	case fromSpace != "" && toSpace == "":
		e.emitf("cvta.%s.u64 %s, %s;", fromSpace, e.regs[in], src)
	case fromSpace == "" && toSpace != "":
		e.emitf("cvta.to.%s.u64 %s, %s;", toSpace, e.regs[in], src)
	default:
		e.emitf("mov.b64 %s, %s;", e.regs[in], src)
	}
	return nil
}

func (e *fnEmitter) emitGEP(in *ir.InstGetElementPtr) error {
	base, err := e.operand(in.Src)
	if err != nil {
		return err
	}
	cur := e.regs[in]
	e.emitf("mov.u64 %s, %s;", cur, base)

	t := in.ElemType
	for i, idx := range in.Indices {
		if i > 0 {
			switch tt := t.(type) {
			case *types.ArrayType:
				t = tt.ElemType
			case *types.StructType:
				c, ok := idx.(*constant.Int)
				if !ok {
					return errors.New("struct field index must be constant")
				}
				off := structFieldOffset(tt, c.X.Int64())
				if off != 0 {
					e.emitf("add.s64 %s, %s, %d;", cur, cur, off)
				}
				t = tt.Fields[c.X.Int64()]
				continue
			default:
				return errors.Errorf("cannot index into %T", t)
			}
		}
		size := sizeOf(t)
		if c, ok := idx.(*constant.Int); ok {
			if off := c.X.Int64() * size; off != 0 {
				e.emitf("add.s64 %s, %s, %d;", cur, cur, off)
			}
			continue
		}
		iv, err := e.operand(idx)
		if err != nil {
			return err
		}
		bits, err := intBits(idx.Type())
		if err != nil {
			return err
		}
		tmp := e.newReg("rd")
		if bits == 64 {
			e.emitf("mul.lo.s64 %s, %s, %d;", tmp, iv, size)
		} else {
			e.emitf("mul.wide.s%d %s, %s, %d;", opBits(bits), tmp, iv, size)
		}
		e.emitf("add.s64 %s, %s, %s;", cur, cur, tmp)
	}
	return nil
}

func (e *fnEmitter) emitSelect(in *ir.InstSelect) error {
	cls, err := classify(in.Type())
	if err != nil {
		return err
	}
	cond, err := e.operand(in.Cond)
	if err != nil {
		return err
	}
	a, b, err := e.binaryOperands(in.ValueTrue, in.ValueFalse)
	if err != nil {
		return err
	}
	e.emitf("selp.%s %s, %s, %s, %s;", selpSuffix(cls), e.regs[in], a, b, cond)
	return nil
}

func (e *fnEmitter) emitTerm(term ir.Terminator) error {
	switch t := term.(type) {
	case *ir.TermRet:
		if t.X != nil && !e.kernel {
			src, err := e.operand(t.X)
			if err != nil {
				return err
			}
			e.emitf("st.param.b%d [func_retval0+0], %s;", paramBits(t.X.Type()), src)
		}
		e.emitf("ret;")
		return nil
	case *ir.TermBr:
		target := asBlock(t.Target)
		if target == nil {
			return errors.New("branch target is not a basic block")
		}
		e.emitf("bra.uni %s;", e.labels[target])
		return nil
	case *ir.TermCondBr:
		cond, err := e.operand(t.Cond)
		if err != nil {
			return err
		}
		tt, tf := asBlock(t.TargetTrue), asBlock(t.TargetFalse)
		if tt == nil || tf == nil {
			return errors.New("conditional branch target is not a basic block")
		}
		e.emitf("@%s bra %s;", cond, e.labels[tt])
		e.emitf("bra.uni %s;", e.labels[tf])
		return nil
	case *ir.TermSwitch:
		return e.emitSwitch(t)
	case *ir.TermUnreachable:
		e.emitf("trap;")
		return nil
	}
	return errors.Errorf("unsupported terminator %T", term)
}

func (e *fnEmitter) emitSwitch(t *ir.TermSwitch) error {
	x, err := e.operand(t.X)
	if err != nil {
		return err
	}
	suffix, err := intSuffix(t.X.Type(), true)
	if err != nil {
		return err
	}
	for _, c := range t.Cases {
		cv, err := e.operand(c.X)
		if err != nil {
			return err
		}
		target := asBlock(c.Target)
		if target == nil {
			return errors.New("switch case target is not a basic block")
		}
		p := e.newReg("p")
		e.emitf("setp.eq.%s %s, %s, %s;", suffix, p, x, cv)
		e.emitf("@%s bra %s;", p, e.labels[target])
	}
	def := asBlock(t.TargetDefault)
	if def == nil {
		return errors.New("switch default target is not a basic block")
	}
	e.emitf("bra.uni %s;", e.labels[def])
	return nil
}
