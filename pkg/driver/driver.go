// Package driver is a thin binding to the CUDA driver API, covering the
// module-loading entry points. The library is resolved at run time so the
// package builds and tests without a CUDA installation.
package driver

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Module is an opaque handle to a GPU module held by the driver.
type Module uintptr

// Driver loads GPU modules from assembled files or in-memory images.
type Driver interface {
	// ModuleLoad loads a module from a file on disk. The file may contain
	// PTX text, a cubin, or a fatbin; the driver dispatches on content.
	ModuleLoad(path string) (Module, error)

	// ModuleLoadData loads a module from an in-memory image, JIT-compiling
	// PTX text if necessary. opts may be nil.
	ModuleLoadData(image []byte, opts *JITOptions) (Module, error)
}

// Result is a CUDA driver API status code (CUresult).
type Result int

const (
	Success             Result = 0
	ErrorInvalidValue   Result = 1
	ErrorOutOfMemory    Result = 2
	ErrorNotInitialized Result = 3
	ErrorNoDevice       Result = 100
	ErrorInvalidImage   Result = 200
	ErrorNoBinaryForGPU Result = 209
	ErrorInvalidPTX     Result = 218
	ErrorFileNotFound   Result = 301
)

var resultNames = map[Result]string{
	Success:             "CUDA_SUCCESS",
	ErrorInvalidValue:   "CUDA_ERROR_INVALID_VALUE",
	ErrorOutOfMemory:    "CUDA_ERROR_OUT_OF_MEMORY",
	ErrorNotInitialized: "CUDA_ERROR_NOT_INITIALIZED",
	ErrorNoDevice:       "CUDA_ERROR_NO_DEVICE",
	ErrorInvalidImage:   "CUDA_ERROR_INVALID_IMAGE",
	ErrorNoBinaryForGPU: "CUDA_ERROR_NO_BINARY_FOR_GPU",
	ErrorInvalidPTX:     "CUDA_ERROR_INVALID_PTX",
	ErrorFileNotFound:   "CUDA_ERROR_FILE_NOT_FOUND",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("CUDA_ERROR_%d", int(r))
}

// Error is a non-success status returned by a driver call.
type Error struct {
	Call string
	Code Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Call, e.Code, int(e.Code))
}

// IsInvalidPTX reports whether err carries CUDA_ERROR_INVALID_PTX.
func IsInvalidPTX(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == ErrorInvalidPTX
}

// JITOptions holds the log buffers handed to the driver's JIT compiler. The
// driver writes NUL-terminated diagnostics into them during ModuleLoadData.
type JITOptions struct {
	errBuf  []byte
	infoBuf []byte
	Verbose bool
}

// NewJITOptions allocates log buffers of the given sizes.
func NewJITOptions(errBytes, infoBytes int, verbose bool) *JITOptions {
	return &JITOptions{
		errBuf:  make([]byte, errBytes),
		infoBuf: make([]byte, infoBytes),
		Verbose: verbose,
	}
}

// ErrorLog returns what the JIT compiler wrote into the error buffer.
func (o *JITOptions) ErrorLog() string { return cstring(o.errBuf) }

// InfoLog returns what the JIT compiler wrote into the info buffer.
func (o *JITOptions) InfoLog() string { return cstring(o.infoBuf) }

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
