package nvptx

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
)

// Emit lowers an LLVM IR module to PTX assembly text for the given compute
// capability and toolkit version, using DefaultOptions. See EmitWithOptions.
func Emit(m *ir.Module, capability, toolkit int) (string, error) {
	return EmitWithOptions(m, capability, toolkit, DefaultOptions())
}

// EmitWithOptions lowers an LLVM IR module to PTX assembly text.
//
// The module is mutated in place: its target triple and data layout are set,
// and every function is marked always-inline (kernels compile as a single
// unit; no cross-function code generation boundaries survive). The returned
// text is owned by the caller and shares no storage with the module.
//
// Code generation targets the capability and PTX ISA version clamped to the
// embedded back end's ceilings, while the resulting ".target" and ".version"
// directives carry the unclamped requested values.
func EmitWithOptions(m *ir.Module, capability, toolkit int, opts Options) (string, error) {
	EnsureInitialized()

	ptx, err := ResolveDialect(toolkit)
	if err != nil {
		return "", err
	}
	internalCC, internalPTX := ClampForBackend(capability, ptx)
	sm := ArchTag(capability)

	if err := Verify(m); err != nil {
		return "", err
	}

	m.TargetTriple = TripleNVPTX64
	target, err := Lookup(m.TargetTriple)
	if err != nil {
		return "", err
	}
	machine := target.CreateMachine(ArchTag(internalCC), FeaturePTX(internalPTX), opts)
	m.DataLayout = machine.DataLayout()

	for _, f := range m.Funcs {
		markAlwaysInline(f)
	}

	text, err := machine.EmitAssembly(m)
	if err != nil {
		return "", err
	}

	text = rewriteModuleDirectives(text, ptx, sm)
	text = stripInlineAsmMarkers(text)
	return text, nil
}

func markAlwaysInline(f *ir.Func) {
	for _, a := range f.FuncAttrs {
		if attr, ok := a.(enum.FuncAttr); ok && attr == enum.FuncAttrAlwaysInline {
			return
		}
	}
	f.FuncAttrs = append(f.FuncAttrs, enum.FuncAttrAlwaysInline)
}
