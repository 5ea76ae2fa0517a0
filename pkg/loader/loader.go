// Package loader turns PTX assembly text into a loaded GPU module. It
// prefers assembling ahead of time with the toolkit's ptxas binary and falls
// back to the driver's embedded JIT compiler when the binary is missing.
package loader

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/gogpu/ptxc/pkg/driver"
)

// Loader assembles and loads PTX modules.
type Loader struct {
	// Assembler is the PTX assembler binary. Defaults to "ptxas", resolved
	// through PATH.
	Assembler string

	// Driver receives the assembled or raw module.
	Driver driver.Driver

	// Diag receives diagnostics such as rejected PTX dumps. Defaults to
	// os.Stderr.
	Diag io.Writer

	// TempDir holds the assembler's scratch files. Empty means the system
	// temp directory.
	TempDir string
}

// New returns a Loader with default assembler and diagnostic settings.
func New(d driver.Driver) *Loader {
	return &Loader{Driver: d}
}

func (l *Loader) assembler() string {
	if l.Assembler != "" {
		return l.Assembler
	}
	return "ptxas"
}

func (l *Loader) diag() io.Writer {
	if l.Diag != nil {
		return l.Diag
	}
	return os.Stderr
}

// AssemblerAvailable probes for a working PTX assembler.
func (l *Loader) AssemblerAvailable() bool {
	return exec.Command(l.assembler(), "--version").Run() == nil
}

// InvalidPTXError reports PTX rejected by the CUDA driver. It carries the
// full rejected text for inspection.
type InvalidPTXError struct {
	PTX string
	Err error
}

func (e *InvalidPTXError) Error() string {
	return fmt.Sprintf("the CUDA driver rejected the PTX module: %v", e.Err)
}

func (e *InvalidPTXError) Unwrap() error { return e.Err }

// Load assembles ptx for the given compute capability and hands the result
// to the driver. A driver rejection of the PTX itself dumps the full text to
// the diagnostic writer before returning an *InvalidPTXError; such a
// rejection usually means the emitted ISA version is newer than the
// installed driver understands.
func (l *Loader) Load(ptx string, capability int) (driver.Module, error) {
	var (
		mod driver.Module
		err error
	)
	if l.AssemblerAvailable() {
		mod, err = l.loadExternal(ptx, capability)
	} else {
		mod, err = l.loadEmbedded(ptx)
	}
	if err != nil && driver.IsInvalidPTX(err) {
		fmt.Fprintf(l.diag(), "--- rejected PTX module ---\n%s\n---------------------------\n", ptx)
		fmt.Fprintf(l.diag(), "%v: the module's ISA version may be newer than the installed driver supports\n", err)
		return 0, &InvalidPTXError{PTX: ptx, Err: err}
	}
	return mod, err
}

// loadExternal writes the PTX to a scratch file, runs the assembler over it
// and loads the resulting object file through the driver. The scratch source
// and log files are always removed; the object file is left behind.
func (l *Loader) loadExternal(ptx string, capability int) (driver.Module, error) {
	tag := xxhash.Sum64String(ptx)
	src, err := os.CreateTemp(l.TempDir, fmt.Sprintf("ptxc-k-%016x-*.ptx", tag))
	if err != nil {
		return 0, errors.Wrap(err, "creating scratch source file")
	}
	logf, err := os.CreateTemp(l.TempDir, fmt.Sprintf("ptxc-l-%016x-*.log", tag))
	if err != nil {
		src.Close()
		os.Remove(src.Name())
		return 0, errors.Wrap(err, "creating scratch log file")
	}
	defer func() {
		os.Remove(src.Name())
		os.Remove(logf.Name())
	}()

	if _, err := src.WriteString(ptx); err != nil {
		src.Close()
		logf.Close()
		return 0, errors.Wrap(err, "writing scratch source file")
	}
	if err := src.Close(); err != nil {
		logf.Close()
		return 0, errors.Wrap(err, "writing scratch source file")
	}

	obj := src.Name() + ".o"
	cmd := exec.Command(l.assembler(), "-v", fmt.Sprintf("--gpu-name=sm_%d", capability), src.Name(), "-o", obj)
	cmd.Stderr = logf
	// The assembler's exit status is not inspected; a failed run leaves no
	// object file and the driver load below reports the failure.
	_ = cmd.Run()
	logf.Close()

	return l.Driver.ModuleLoad(obj)
}

// loadEmbedded hands the PTX text to the driver's JIT compiler.
func (l *Loader) loadEmbedded(ptx string) (driver.Module, error) {
	opts := driver.NewJITOptions(8192, 8192, true)
	mod, err := l.Driver.ModuleLoadData([]byte(ptx), opts)
	if err != nil {
		if log := opts.ErrorLog(); log != "" {
			return 0, errors.Wrap(err, log)
		}
		return 0, err
	}
	return mod, nil
}
