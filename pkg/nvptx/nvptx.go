// Package nvptx lowers LLVM IR kernel modules to PTX assembly text.
//
// The pipeline is: verify the module, configure a target machine for the
// requested compute capability and PTX ISA version, run code generation, then
// rewrite the emitted module directives so they advertise the versions the
// caller asked for rather than the (possibly lower) versions the embedded
// code generator actually targeted.
package nvptx

import (
	"sync"

	"github.com/pkg/errors"
)

// Target triples understood by the embedded back end.
const (
	TripleNVPTX64 = "nvptx64-nvidia-cuda"
	TripleNVPTX32 = "nvptx-nvidia-cuda"
)

// Target describes one registered NVPTX architecture variant. A Target is the
// entry point for constructing target machines; it is registered once per
// process by EnsureInitialized.
type Target struct {
	Triple      string
	Description string
	AddressSize int
}

var (
	initOnce      sync.Once
	targets       = make(map[string]*Target)
	registrations int
)

// EnsureInitialized registers the NVPTX architecture descriptors with the
// back-end registry. It is idempotent; only the first call performs
// registration. The registry is process-wide state and is never torn down.
func EnsureInitialized() {
	initOnce.Do(func() {
		registerTarget(&Target{
			Triple:      TripleNVPTX64,
			Description: "NVIDIA PTX 64-bit",
			AddressSize: 64,
		})
		registerTarget(&Target{
			Triple:      TripleNVPTX32,
			Description: "NVIDIA PTX 32-bit",
			AddressSize: 32,
		})
	})
}

func registerTarget(t *Target) {
	targets[t.Triple] = t
	registrations++
}

// registrationCount reports how many descriptor registrations have happened.
func registrationCount() int { return registrations }

// ErrUnknownTriple reports a target lookup for a triple the back end does not
// know about.
var ErrUnknownTriple = errors.New("no registered target for triple")

// Lookup resolves a target triple to its registered descriptor.
func Lookup(triple string) (*Target, error) {
	EnsureInitialized()
	t, ok := targets[triple]
	if !ok {
		return nil, errors.Wrap(ErrUnknownTriple, triple)
	}
	return t, nil
}
