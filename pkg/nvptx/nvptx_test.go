package nvptx

import (
	"errors"
	"testing"
)

func TestEnsureInitializedIdempotent(t *testing.T) {
	EnsureInitialized()
	n := registrationCount()
	if n == 0 {
		t.Fatal("no targets registered after EnsureInitialized")
	}
	EnsureInitialized()
	if got := registrationCount(); got != n {
		t.Errorf("second EnsureInitialized changed registration count: %d -> %d", n, got)
	}
}

func TestLookup(t *testing.T) {
	tgt, err := Lookup(TripleNVPTX64)
	if err != nil {
		t.Fatalf("Lookup(%q) error: %v", TripleNVPTX64, err)
	}
	if tgt.AddressSize != 64 {
		t.Errorf("address size = %d, want 64", tgt.AddressSize)
	}

	if _, err := Lookup("x86_64-unknown-linux-gnu"); !errors.Is(err, ErrUnknownTriple) {
		t.Errorf("Lookup of foreign triple: error = %v, want ErrUnknownTriple", err)
	}
}

func TestMachineDataLayout(t *testing.T) {
	tgt, err := Lookup(TripleNVPTX64)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	m := tgt.CreateMachine("sm_75", "+ptx64", opts)
	if got := m.DataLayout(); got != "e-p3:32:32-p4:32:32-p5:32:32-i64:64-i128:128-v16:16-v32:32-n16:32:64" {
		t.Errorf("short-pointer layout = %q", got)
	}

	opts.ShortPointers = false
	m = tgt.CreateMachine("sm_75", "+ptx64", opts)
	if got := m.DataLayout(); got != "e-i64:64-i128:128-v16:16-v32:32-n16:32:64" {
		t.Errorf("default layout = %q", got)
	}

	if got := m.CPU(); got != "sm_75" {
		t.Errorf("CPU() = %q, want sm_75", got)
	}
	if got := m.PTXVersion(); got != 64 {
		t.Errorf("PTXVersion() = %d, want 64", got)
	}
}
