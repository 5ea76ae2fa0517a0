package nvptx

import (
	"fmt"

	"github.com/llir/llvm/ir"
)

// VerifyIssue is one structural defect found in an IR module.
type VerifyIssue struct {
	Func    string
	Message string
}

func (i VerifyIssue) String() string {
	if i.Func != "" {
		return fmt.Sprintf("in function %s: %s", i.Func, i.Message)
	}
	return i.Message
}

// VerifyError reports that an input module failed structural verification.
// This is a precondition violation on the caller's side; emission is never
// retried after it.
type VerifyError struct {
	Issues []VerifyIssue
}

func (e *VerifyError) Error() string {
	if len(e.Issues) == 1 {
		return "IR verification failed: " + e.Issues[0].String()
	}
	return fmt.Sprintf("IR verification failed: %s (and %d more issues)", e.Issues[0].String(), len(e.Issues)-1)
}

// Verify runs a structural verification pass over the module. It returns a
// *VerifyError describing every defect found, or nil for a well-formed
// module.
func Verify(m *ir.Module) error {
	if m == nil {
		return &VerifyError{Issues: []VerifyIssue{{Message: "module is nil"}}}
	}

	var issues []VerifyIssue
	report := func(fn, format string, args ...interface{}) {
		issues = append(issues, VerifyIssue{Func: fn, Message: fmt.Sprintf(format, args...)})
	}

	for _, f := range m.Funcs {
		if f.Sig == nil {
			report(f.Name(), "function has no signature")
			continue
		}
		if len(f.Blocks) == 0 {
			// Declaration only; nothing further to check.
			continue
		}
		for i, b := range f.Blocks {
			if b.Term == nil {
				report(f.Name(), "basic block %d has no terminator", i)
			}
			for _, inst := range b.Insts {
				switch in := inst.(type) {
				case *ir.InstCall:
					if callee, ok := in.Callee.(*ir.Func); ok {
						want := len(callee.Params)
						got := len(in.Args)
						if got < want || (got > want && !callee.Sig.Variadic) {
							report(f.Name(), "call to %s has %d arguments, want %d", callee.Name(), got, want)
						}
					}
				case *ir.InstPhi:
					if len(in.Incs) == 0 {
						report(f.Name(), "phi instruction has no incoming values")
					}
				case *ir.InstLoad:
					if in.ElemType == nil {
						report(f.Name(), "load instruction has no element type")
					}
				case *ir.InstStore:
					if in.Src == nil || in.Dst == nil {
						report(f.Name(), "store instruction has a missing operand")
					}
				}
			}
		}
	}

	if len(issues) > 0 {
		return &VerifyError{Issues: issues}
	}
	return nil
}
