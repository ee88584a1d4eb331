package model

import (
	"errors"
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXExtractor runs an ONNX network over preallocated tensors.
type ONNXExtractor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
	shape   []int64
}

// NewONNX initializes the ONNX Runtime environment, checks that the model
// declares the tensors named in spec, and creates a session bound to them.
func NewONNX(spec Spec) (*ONNXExtractor, error) {
	if spec.ONNXLibrary != "" {
		ort.SetSharedLibraryPath(spec.ONNXLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX model info: %w", err)
	}

	in, ok := findInfo(inputInfo, spec.Input)
	if !ok {
		return nil, fmt.Errorf("%w: input %q", ErrTensorNotFound, spec.Input)
	}
	if len(in.Dimensions) != len(spec.InputShape) {
		return nil, fmt.Errorf("%w: input %q has shape %v, preprocessing produces %v",
			ErrShape, spec.Input, in.Dimensions, spec.InputShape)
	}

	e := &ONNXExtractor{shape: append([]int64(nil), spec.InputShape...)}

	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputs := make([]ort.Value, 0, len(spec.Outputs))
	for _, name := range spec.Outputs {
		info, ok := findInfo(outputInfo, name)
		if !ok {
			e.Close()
			return nil, fmt.Errorf("%w: output %q", ErrTensorNotFound, name)
		}

		out, err := ort.NewEmptyTensor[float32](ort.NewShape(resolveShape(info.Dimensions)...))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create output tensor %q: %w", name, err)
		}
		e.outputs = append(e.outputs, out)
		outputs = append(outputs, out)
	}

	e.session, err = ort.NewAdvancedSession(spec.Path,
		[]string{spec.Input}, spec.Outputs,
		[]ort.Value{e.input}, outputs,
		nil)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session ready", "input_shape", spec.InputShape, "outputs", len(e.outputs))

	return e, nil
}

// Extract copies pixels into the input tensor, runs the network and returns
// the outputs concatenated in configuration order.
func (e *ONNXExtractor) Extract(pixels []float32) ([]float32, error) {
	input := e.input.GetData()
	if len(pixels) != len(input) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShape, len(input), len(pixels))
	}
	copy(input, pixels)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	var embedding []float32
	for _, out := range e.outputs {
		embedding = append(embedding, out.GetData()...)
	}
	return embedding, nil
}

// InputShape returns the shape of the preallocated input tensor.
func (e *ONNXExtractor) InputShape() []int64 {
	return append([]int64(nil), e.shape...)
}

// Close releases the session, the tensors and the runtime environment.
func (e *ONNXExtractor) Close() error {
	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
	}
	for _, out := range e.outputs {
		errs = append(errs, out.Destroy())
	}
	if e.input != nil {
		errs = append(errs, e.input.Destroy())
	}
	if ort.IsInitialized() {
		errs = append(errs, ort.DestroyEnvironment())
	}
	return errors.Join(errs...)
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}
