package nvptx

import (
	"errors"
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func TestVerifyWellFormed(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("empty", types.Void)
	b := f.NewBlock("")
	b.NewRet(nil)

	if err := Verify(m); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerifyNilModule(t *testing.T) {
	var verr *VerifyError
	if err := Verify(nil); !errors.As(err, &verr) {
		t.Fatalf("Verify(nil) = %v, want *VerifyError", err)
	}
}

func TestVerifyMissingTerminator(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("broken", types.Void)
	f.NewBlock("")

	err := Verify(m)
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify() = %v, want *VerifyError", err)
	}
	if len(verr.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(verr.Issues), verr.Issues)
	}
	if verr.Issues[0].Func != "broken" {
		t.Errorf("issue attributed to %q, want %q", verr.Issues[0].Func, "broken")
	}
	if !strings.Contains(verr.Issues[0].Message, "terminator") {
		t.Errorf("issue message %q does not mention the terminator", verr.Issues[0].Message)
	}
}

func TestVerifyDeclarationSkipped(t *testing.T) {
	m := ir.NewModule()
	m.NewFunc("extern_decl", types.Void)

	if err := Verify(m); err != nil {
		t.Fatalf("Verify() on declaration-only module = %v, want nil", err)
	}
}

func TestVerifyCallArity(t *testing.T) {
	m := ir.NewModule()
	callee := m.NewFunc("callee", types.Void, ir.NewParam("x", types.I32))
	cb := callee.NewBlock("")
	cb.NewRet(nil)

	caller := m.NewFunc("caller", types.Void)
	b := caller.NewBlock("")
	b.NewCall(callee)
	b.NewRet(nil)

	err := Verify(m)
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify() = %v, want *VerifyError", err)
	}
	if !strings.Contains(verr.Error(), "arguments") {
		t.Errorf("error %q does not mention arguments", verr.Error())
	}
}
