package vision

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Network is a feed-forward model with one input and one output tensor.
type Network interface {
	Forward(input []float32) ([]float32, error)
}

// NetworkSpec fixes the tensor names and shapes a model is bound with.
type NetworkSpec struct {
	Input       string
	Output      string
	InputShape  []int64
	OutputShape []int64
}

func faceNetSpec(maxDetections int) NetworkSpec {
	return NetworkSpec{
		Input:       "data",
		Output:      "detection_out",
		InputShape:  []int64{1, 3, faceBlob.height, faceBlob.width},
		OutputShape: []int64{1, 1, int64(maxDetections), ssdRowLen},
	}
}

func classifierSpec(classes int) NetworkSpec {
	return NetworkSpec{
		Input:       "data",
		Output:      "prob",
		InputShape:  []int64{1, 3, attributeBlob.height, attributeBlob.width},
		OutputShape: []int64{1, int64(classes)},
	}
}

func objectNetSpec(maxDetections int) NetworkSpec {
	return NetworkSpec{
		Input:       "data",
		Output:      "detection_out",
		InputShape:  []int64{1, 3, objectBlob.height, objectBlob.width},
		OutputShape: []int64{1, 1, int64(maxDetections), ssdRowLen},
	}
}

// ONNXNetwork runs a model through ONNX Runtime. The bound tensors are
// reused between calls, so Forward is serialised.
type ONNXNetwork struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// OpenONNX loads the model at path. opts may be nil (ORT defaults).
// A missing file is reported as *AssetError before the runtime is touched.
func OpenONNX(path string, spec NetworkSpec, opts *ort.SessionOptions) (*ONNXNetwork, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{spec.Input},
		[]string{spec.Output},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}

	return &ONNXNetwork{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Forward copies input into the bound tensor, runs the session and returns
// a copy of the output.
func (n *ONNXNetwork) Forward(input []float32) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dst := n.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input size %d, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := n.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	data := n.outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (n *ONNXNetwork) Close() {
	if n.session != nil {
		n.session.Destroy()
	}
	if n.inputTensor != nil {
		n.inputTensor.Destroy()
	}
	if n.outputTensor != nil {
		n.outputTensor.Destroy()
	}
}

// NewSessionOptions builds options shared by every session. threads <= 0
// keeps the runtime default.
func NewSessionOptions(threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	return opts, nil
}
