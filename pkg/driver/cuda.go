//go:build linux || darwin

package driver

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// CUjit_option identifiers from cuda.h.
const (
	jitInfoLogBuffer           = 3
	jitInfoLogBufferSizeBytes  = 4
	jitErrorLogBuffer          = 5
	jitErrorLogBufferSizeBytes = 6
	jitLogVerbose              = 12
)

type cudaDriver struct {
	moduleLoad       func(handle *uintptr, path string) uint32
	moduleLoadDataEx func(handle *uintptr, image unsafe.Pointer, numOptions uint32, options *uintptr, values *uintptr) uint32
}

var (
	openOnce sync.Once
	opened   *cudaDriver
	openErr  error
)

func libName() string {
	if runtime.GOOS == "darwin" {
		return "libcuda.dylib"
	}
	return "libcuda.so.1"
}

// Open resolves the CUDA driver library and initializes it. The result is
// cached; every call after the first returns the same driver or the same
// error.
func Open() (Driver, error) {
	openOnce.Do(func() {
		lib, err := purego.Dlopen(libName(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			openErr = errors.Wrapf(err, "loading %s", libName())
			return
		}
		var cuInit func(flags uint32) uint32
		d := &cudaDriver{}
		purego.RegisterLibFunc(&cuInit, lib, "cuInit")
		purego.RegisterLibFunc(&d.moduleLoad, lib, "cuModuleLoad")
		purego.RegisterLibFunc(&d.moduleLoadDataEx, lib, "cuModuleLoadDataEx")
		if r := Result(cuInit(0)); r != Success {
			openErr = &Error{Call: "cuInit", Code: r}
			return
		}
		opened = d
	})
	if openErr != nil {
		return nil, openErr
	}
	return opened, nil
}

func (d *cudaDriver) ModuleLoad(path string) (Module, error) {
	var h uintptr
	if r := Result(d.moduleLoad(&h, path)); r != Success {
		return 0, &Error{Call: "cuModuleLoad", Code: r}
	}
	return Module(h), nil
}

func (d *cudaDriver) ModuleLoadData(image []byte, opts *JITOptions) (Module, error) {
	// The driver expects a NUL-terminated image when it holds PTX text.
	img := make([]byte, len(image)+1)
	copy(img, image)

	var keys, vals []uintptr
	if opts != nil {
		verbose := uintptr(0)
		if opts.Verbose {
			verbose = 1
		}
		keys = []uintptr{
			jitErrorLogBuffer, jitErrorLogBufferSizeBytes,
			jitInfoLogBuffer, jitInfoLogBufferSizeBytes,
			jitLogVerbose,
		}
		vals = []uintptr{
			uintptr(unsafe.Pointer(&opts.errBuf[0])), uintptr(len(opts.errBuf)),
			uintptr(unsafe.Pointer(&opts.infoBuf[0])), uintptr(len(opts.infoBuf)),
			verbose,
		}
	}
	var kp, vp *uintptr
	if len(keys) > 0 {
		kp, vp = &keys[0], &vals[0]
	}

	var h uintptr
	r := Result(d.moduleLoadDataEx(&h, unsafe.Pointer(&img[0]), uint32(len(keys)), kp, vp))
	runtime.KeepAlive(opts)
	runtime.KeepAlive(img)
	if r != Success {
		return 0, &Error{Call: "cuModuleLoadDataEx", Code: r}
	}
	return Module(h), nil
}
