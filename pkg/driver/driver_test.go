package driver

import (
	"testing"

	"github.com/pkg/errors"
)

func TestResultString(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Success, "CUDA_SUCCESS"},
		{ErrorInvalidPTX, "CUDA_ERROR_INVALID_PTX"},
		{ErrorFileNotFound, "CUDA_ERROR_FILE_NOT_FOUND"},
		{Result(999), "CUDA_ERROR_999"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Result(%d).String() = %q, want %q", int(tt.r), got, tt.want)
		}
	}
}

func TestIsInvalidPTX(t *testing.T) {
	err := &Error{Call: "cuModuleLoadDataEx", Code: ErrorInvalidPTX}
	if !IsInvalidPTX(err) {
		t.Error("IsInvalidPTX() = false for CUDA_ERROR_INVALID_PTX")
	}
	if !IsInvalidPTX(errors.Wrap(err, "loading module")) {
		t.Error("IsInvalidPTX() = false for a wrapped driver error")
	}
	if IsInvalidPTX(&Error{Call: "cuModuleLoad", Code: ErrorFileNotFound}) {
		t.Error("IsInvalidPTX() = true for CUDA_ERROR_FILE_NOT_FOUND")
	}
	if IsInvalidPTX(errors.New("unrelated")) {
		t.Error("IsInvalidPTX() = true for a non-driver error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Call: "cuModuleLoadDataEx", Code: ErrorInvalidPTX}
	want := "cuModuleLoadDataEx failed: CUDA_ERROR_INVALID_PTX (218)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestJITOptionsLogs(t *testing.T) {
	opts := NewJITOptions(64, 64, true)
	if opts.ErrorLog() != "" || opts.InfoLog() != "" {
		t.Error("fresh option buffers are not empty")
	}

	copy(opts.errBuf, "ptxas application error\x00trailing garbage")
	copy(opts.infoBuf, "0 bytes spill stores\x00")
	if got := opts.ErrorLog(); got != "ptxas application error" {
		t.Errorf("ErrorLog() = %q", got)
	}
	if got := opts.InfoLog(); got != "0 bytes spill stores" {
		t.Errorf("InfoLog() = %q", got)
	}
}

func TestJITOptionsUnterminatedBuffer(t *testing.T) {
	opts := NewJITOptions(4, 4, false)
	copy(opts.errBuf, "full")
	if got := opts.ErrorLog(); got != "full" {
		t.Errorf("ErrorLog() = %q, want %q", got, "full")
	}
}
