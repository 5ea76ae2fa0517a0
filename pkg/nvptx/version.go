package nvptx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Ceilings of the embedded code generator. These may trail what the installed
// driver accepts, which is why code generation clamps to them while the
// emitted module directives keep the caller's requested values.
const (
	MaxBackendCapability = 75
	MaxBackendPTX        = 64
)

// ErrUnsupportedToolkit reports a CUDA toolkit older than 10.0, the minimum
// this pipeline supports.
var ErrUnsupportedToolkit = errors.New("CUDA toolkit 10.0 or newer is required")

// ResolveDialect maps an installed toolkit version (encoded as
// major*1000 + minor*10, e.g. 11030 for 11.3) to the highest PTX ISA version
// that toolkit documents. The tiers are exact compatibility thresholds, not a
// formula; do not reorder or interpolate them.
func ResolveDialect(toolkit int) (int, error) {
	switch {
	case toolkit >= 11030:
		return 73, nil
	case toolkit >= 11020:
		return 72, nil
	case toolkit >= 11010:
		return 71, nil
	case toolkit >= 11000:
		return 70, nil
	case toolkit >= 10020:
		return 65, nil
	case toolkit >= 10010:
		return 64, nil
	case toolkit >= 10000:
		return 63, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedToolkit, "toolkit version %d", toolkit)
}

// ClampForBackend caps the requested compute capability and PTX ISA version at
// what the embedded code generator supports. The two values clamp
// independently.
func ClampForBackend(capability, ptx int) (int, int) {
	if capability > MaxBackendCapability {
		capability = MaxBackendCapability
	}
	if ptx > MaxBackendPTX {
		ptx = MaxBackendPTX
	}
	return capability, ptx
}

// ArchTag renders a compute capability as its architecture tag, e.g. "sm_80".
func ArchTag(capability int) string { return fmt.Sprintf("sm_%d", capability) }

// FeaturePTX renders a PTX ISA version as a target feature string, e.g.
// "+ptx64".
func FeaturePTX(ptx int) string { return fmt.Sprintf("+ptx%d", ptx) }

// DialectString renders a PTX ISA version as the ".version" directive form,
// e.g. 73 becomes "7.3".
func DialectString(ptx int) string { return fmt.Sprintf("%d.%d", ptx/10, ptx%10) }
