package classifier

import (
	"context"
	"fmt"
	"log"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/i474232898/agri-assist/internal/apperr"
)

var ortInit struct {
	once sync.Once
	err  error
}

// initRuntime loads the ONNX Runtime shared library once per process.
func initRuntime(libPath string) error {
	ortInit.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	return ortInit.err
}

// onnxNetwork runs a single-input, single-output image model through ONNX Runtime.
// The session reuses its bound tensors, so Forward calls are serialized.
type onnxNetwork struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	outSize int
}

// ONNXLoader returns a Loader that opens modelPath with the runtime library at
// libPath (empty uses the platform default). The model must take a
// [1, 3, InputSize, InputSize] float tensor and produce one row of logits.
func ONNXLoader(modelPath, libPath string) Loader {
	return func(ctx context.Context) (Network, error) {
		if modelPath == "" {
			return nil, fmt.Errorf("no model path configured")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := initRuntime(libPath); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
		return openONNX(modelPath)
	}
}

func openONNX(modelPath string) (*onnxNetwork, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, apperr.Modelf("expected one input and one output, got %d and %d", len(inputs), len(outputs))
	}

	inShape := fixedShape(inputs[0].Dimensions)
	want := ort.NewShape(1, 3, InputSize, InputSize)
	if inShape.FlattenedSize() != want.FlattenedSize() {
		return nil, apperr.Modelf("model input %s has shape %v, expected %v", inputs[0].Name, inShape, want)
	}
	outShape := fixedShape(outputs[0].Dimensions)

	in, err := ort.NewEmptyTensor[float32](want)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Printf("INFO: opened onnx model %s (input %s %v, output %s %v)",
		modelPath, inputs[0].Name, inShape, outputs[0].Name, outShape)
	return &onnxNetwork{
		session: session,
		input:   in,
		output:  out,
		outSize: int(outShape.FlattenedSize()),
	}, nil
}

// fixedShape replaces dynamic (non-positive) dimensions with 1.
func fixedShape(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func (n *onnxNetwork) OutputSize() int { return n.outSize }

func (n *onnxNetwork) Forward(input []float32) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dst := n.input.GetData()
	if len(input) != len(dst) {
		return nil, apperr.Modelf("input tensor has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)
	if err := n.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	return append([]float32(nil), n.output.GetData()...), nil
}

func (n *onnxNetwork) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.session != nil {
		err = n.session.Destroy()
		n.session = nil
	}
	if n.input != nil {
		n.input.Destroy()
		n.input = nil
	}
	if n.output != nil {
		n.output.Destroy()
		n.output = nil
	}
	return err
}
