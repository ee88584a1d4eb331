package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	tf "github.com/kiteco/tensorflow/tensorflow/go"
)

// TensorFlowExtractor runs a frozen GraphDef, with variables already folded
// into constants.
type TensorFlowExtractor struct {
	graph   *tf.Graph
	session *tf.Session
	input   tf.Output
	outputs []tf.Output
	shape   []int64
}

// NewTensorFlow imports the frozen graph at spec.Path and resolves the
// input and output ops. Names may carry an output index, as in "pool_3:0".
func NewTensorFlow(spec Spec) (*TensorFlowExtractor, error) {
	data, err := os.ReadFile(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading graph definition: %w", err)
	}

	graph := tf.NewGraph()
	if err := graph.Import(data, ""); err != nil {
		graph.Delete()
		return nil, fmt.Errorf("error importing graph: %w", err)
	}

	e := &TensorFlowExtractor{graph: graph, shape: spec.InputShape}

	e.input, err = e.tfOut(spec.Input)
	if err != nil {
		graph.Delete()
		return nil, err
	}
	for _, name := range spec.Outputs {
		out, err := e.tfOut(name)
		if err != nil {
			graph.Delete()
			return nil, err
		}
		e.outputs = append(e.outputs, out)
	}

	e.session, err = tf.NewSession(graph, nil)
	if err != nil {
		graph.Delete()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return e, nil
}

// Extract feeds pixels as a float tensor of the configured shape and returns
// the fetched outputs, flattened and concatenated.
func (e *TensorFlowExtractor) Extract(pixels []float32) ([]float32, error) {
	if want := Elements(e.shape); len(pixels) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShape, want, len(pixels))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, pixels); err != nil {
		return nil, fmt.Errorf("error encoding input: %w", err)
	}
	input, err := tf.ReadTensor(tf.Float, e.shape, &buf)
	if err != nil {
		return nil, fmt.Errorf("error creating tensor: %w", err)
	}
	defer input.Delete()

	res, err := e.session.Run(map[tf.Output]*tf.Tensor{e.input: input}, e.outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("error running model: %w", err)
	}
	defer func() {
		for _, t := range res {
			t.Delete()
		}
	}()

	var embedding []float32
	for _, t := range res {
		values, err := flatten(t.Value())
		if err != nil {
			return nil, err
		}
		embedding = append(embedding, values...)
	}
	return embedding, nil
}

// InputShape returns the shape pixels are fed with.
func (e *TensorFlowExtractor) InputShape() []int64 {
	return append([]int64(nil), e.shape...)
}

// Close releases the session and the graph.
func (e *TensorFlowExtractor) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Close()
	}
	if e.graph != nil {
		e.graph.Delete()
	}
	e.session = nil
	e.graph = nil
	return err
}

func (e *TensorFlowExtractor) tfOut(name string) (tf.Output, error) {
	opName, index := parseTensorName(name)
	op := e.graph.Operation(opName)
	if op == nil {
		return tf.Output{}, fmt.Errorf("%w: could not find op with name: %s", ErrTensorNotFound, opName)
	}
	if index >= op.NumOutputs() {
		return tf.Output{}, fmt.Errorf("%w: op %s has %d outputs, wanted index %d",
			ErrTensorNotFound, opName, op.NumOutputs(), index)
	}
	return op.Output(index), nil
}

// parseTensorName splits "op:index" into its parts. A name without an index
// refers to output 0.
func parseTensorName(name string) (string, int) {
	i := strings.LastIndexByte(name, ':')
	if i < 0 {
		return name, 0
	}
	index, err := strconv.Atoi(name[i+1:])
	if err != nil || index < 0 {
		return name, 0
	}
	return name[:i], index
}
