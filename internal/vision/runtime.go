package vision

import (
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// Runtime owns the process-wide ONNX Runtime environment. A failed start is
// recorded rather than fatal: the cascade detector and filters keep working.
type Runtime struct {
	opts *ort.SessionOptions
	err  error
}

// StartRuntime loads the shared library (libPath, or the platform default
// when empty) and prepares session options.
func StartRuntime(libPath string, threads int) *Runtime {
	if libPath == "" {
		libPath = defaultONNXLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return &Runtime{err: fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)}
	}

	opts, err := NewSessionOptions(threads)
	if err != nil {
		_ = ort.DestroyEnvironment()
		return &Runtime{err: fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)}
	}
	return &Runtime{opts: opts}
}

// Err is nil when networks can be opened.
func (r *Runtime) Err() error {
	if r == nil {
		return ErrInferenceUnavailable
	}
	return r.err
}

// open loads one network. When the runtime is down a missing file still
// reports as a missing asset.
func (r *Runtime) open(path string, spec NetworkSpec) (*ONNXNetwork, error) {
	if err := r.Err(); err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, &AssetError{Path: path, Err: statErr}
		}
		return nil, err
	}
	return OpenONNX(path, spec, r.opts)
}

func (r *Runtime) Close() {
	if r == nil || r.err != nil {
		return
	}
	if r.opts != nil {
		_ = r.opts.Destroy()
	}
	_ = ort.DestroyEnvironment()
}

// defaultONNXLibPath returns the ONNX Runtime shared library name for the
// current operating system.
func defaultONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
