package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Resizing kinds accepted by PreprocessConfig.Resizing.
const (
	ResizeIsoCrop = "iso_crop"
	ResizeFill    = "fill"
	ResizeIsoPad  = "iso_pad"
)

// Model file formats accepted by ModelConfig.Format.
const (
	FormatONNX       = "onnx"
	FormatTensorFlow = "tensorflow"
)

// Label key orderings accepted by TrainerConfig.LabelOrdering.
const (
	OrderByOccurrence = "occurrence"
	OrderByValue      = "value"
)

// Config holds everything a classification run needs. It is built once at
// startup and handed to each stage explicitly.
type Config struct {
	Assets     AssetsConfig     `json:"assets"     yaml:"assets"`
	Model      ModelConfig      `json:"model"      yaml:"model"`
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
	Trainer    TrainerConfig    `json:"trainer"    yaml:"trainer"`
	Log        LogConfig        `json:"log"        yaml:"log"`
}

// AssetsConfig locates the labeled images on disk.
//
// Images is relative to Root, and the tag files and the prediction image are
// relative to Images, unless they are absolute.
type AssetsConfig struct {
	Root         string `json:"root"          yaml:"root"`
	Images       string `json:"images"        yaml:"images"`
	TrainTags    string `json:"train_tags"    yaml:"train_tags"`
	TestTags     string `json:"test_tags"     yaml:"test_tags"`
	PredictImage string `json:"predict_image" yaml:"predict_image"`
}

// ModelConfig describes the frozen feature network.
type ModelConfig struct {
	// Path is relative to the assets root unless absolute.
	Path string `json:"path" yaml:"path"`
	// Format is one of FormatONNX or FormatTensorFlow. Empty means infer
	// from the file extension.
	Format  string   `json:"format,omitempty" yaml:"format,omitempty"`
	Input   string   `json:"input"            yaml:"input"`
	Outputs []string `json:"outputs"          yaml:"outputs"`

	AddBatchDimension bool `json:"add_batch_dimension" yaml:"add_batch_dimension"`

	// ONNXLibrary is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	ONNXLibrary string `json:"onnx_library,omitempty" yaml:"onnx_library,omitempty"`

	// CacheSize bounds the embedding cache. Zero disables it.
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// PreprocessConfig fixes how images become network input. A trained model
// must be applied with the same values it was fitted with.
type PreprocessConfig struct {
	Width         int     `json:"width"          yaml:"width"`
	Height        int     `json:"height"         yaml:"height"`
	Offset        float32 `json:"offset"         yaml:"offset"`
	Scale         float32 `json:"scale"          yaml:"scale"`
	ChannelsLast  bool    `json:"channels_last"  yaml:"channels_last"`
	Order         string  `json:"order"          yaml:"order"`
	Resizing      string  `json:"resizing"       yaml:"resizing"`
	Interpolation string  `json:"interpolation"  yaml:"interpolation"`
}

// TrainerConfig tunes the maximum entropy trainer.
type TrainerConfig struct {
	L2            float64 `json:"l2"             yaml:"l2"`
	Tolerance     float64 `json:"tolerance"      yaml:"tolerance"`
	History       int     `json:"history"        yaml:"history"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
	LabelOrdering string  `json:"label_ordering" yaml:"label_ordering"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level   string `json:"level"              yaml:"level"`
	NoColor bool   `json:"no_color,omitempty" yaml:"no_color,omitempty"`

	// File, when set, receives a JSON copy of every record, rotated by size.
	File       string `json:"file,omitempty"        yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// ImagesDir returns the folder image paths in the tag files are relative to.
func (c *Config) ImagesDir() string {
	return resolve(expandTilde(c.Assets.Root), c.Assets.Images)
}

// TrainTags returns the training tag file path.
func (c *Config) TrainTags() string {
	return resolve(c.ImagesDir(), c.Assets.TrainTags)
}

// TestTags returns the held-out tag file path.
func (c *Config) TestTags() string {
	return resolve(c.ImagesDir(), c.Assets.TestTags)
}

// PredictImage returns the path of the image classified at the end of a run.
func (c *Config) PredictImage() string {
	return resolve(c.ImagesDir(), c.Assets.PredictImage)
}

// ModelPath returns the frozen network file path.
func (c *Config) ModelPath() string {
	return resolve(expandTilde(c.Assets.Root), c.Model.Path)
}

func resolve(base, p string) string {
	if p == "" {
		return ""
	}
	p = expandTilde(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func expandTilde(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
