// Package model runs a frozen pretrained network as a feature extractor.
// Two runtimes are supported: ONNX Runtime for .onnx files and TensorFlow
// for frozen GraphDef .pb files.
package model

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/imgclassify/internal/config"
)

// Extractor produces an embedding from one preprocessed pixel tensor. It
// never updates the network's parameters.
type Extractor interface {
	Extract(pixels []float32) ([]float32, error)
	// InputShape is the tensor shape Extract expects, batch included.
	InputShape() []int64
	Close() error
}

// Spec describes the network file and the tensors to bind.
type Spec struct {
	Path    string
	Format  string
	Input   string
	Outputs []string

	// InputShape is the full shape fed to the network, batch included.
	InputShape []int64

	ONNXLibrary string
}

// NewSpec builds a Spec from the model section of cfg and the tensor shape
// produced by the preprocessor.
func NewSpec(cfg *config.Config, inputShape []int64) Spec {
	return Spec{
		Path:        cfg.ModelPath(),
		Format:      cfg.Model.Format,
		Input:       cfg.Model.Input,
		Outputs:     cfg.Model.Outputs,
		InputShape:  inputShape,
		ONNXLibrary: cfg.Model.ONNXLibrary,
	}
}

// FormatFor infers the model format from the file extension.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx", ".ort":
		return config.FormatONNX
	case ".pb":
		return config.FormatTensorFlow
	default:
		return ""
	}
}

// Open loads the network described by spec with the matching runtime.
func Open(spec Spec) (Extractor, error) {
	info, err := os.Stat(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to find model file: %w", err)
	}

	format := spec.Format
	if format == "" {
		format = FormatFor(spec.Path)
	}

	slog.Info("Loading feature network",
		"path", spec.Path,
		"format", format,
		"size", humanize.Bytes(uint64(info.Size())),
		"input", spec.Input,
		"outputs", spec.Outputs,
	)

	switch format {
	case config.FormatONNX:
		return NewONNX(spec)
	case config.FormatTensorFlow:
		return NewTensorFlow(spec)
	default:
		return nil, fmt.Errorf("%w: %q (%s)", ErrFormat, format, spec.Path)
	}
}

// resolveShape replaces dynamic dimensions with 1, the batch size this
// program always uses.
func resolveShape(dims []int64) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// Elements returns the number of values in a tensor of the given shape.
func Elements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// flatten copies a tensor value of any rank up to 4 into a flat slice.
func flatten(value any) ([]float32, error) {
	switch v := value.(type) {
	case float32:
		return []float32{v}, nil
	case []float32:
		return append([]float32(nil), v...), nil
	case [][]float32:
		var out []float32
		for _, row := range v {
			out = append(out, row...)
		}
		return out, nil
	case [][][]float32:
		var out []float32
		for _, m := range v {
			for _, row := range m {
				out = append(out, row...)
			}
		}
		return out, nil
	case [][][][]float32:
		var out []float32
		for _, t := range v {
			for _, m := range t {
				for _, row := range m {
					out = append(out, row...)
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrOutputType, value)
	}
}
