package config

import (
	"os"
	"path/filepath"
)

// Default values for a run with no config file. They describe the fixed
// assets layout the program has always used.
const (
	DefaultImagesDir    = "images"
	DefaultTrainTags    = "tags.tsv"
	DefaultTestTags     = "test-tags.tsv"
	DefaultPredictImage = "toaster3.jpg"
	DefaultModelPath    = "inception/tensorflow_inception_graph.pb"
	DefaultInput        = "input"
	DefaultOutput       = "softmax2_pre_activation"

	DefaultImageSize = 224
	DefaultOffset    = 150
	DefaultCacheSize = 512
)

// DefaultAssetsRoot returns the assets directory under the working directory.
func DefaultAssetsRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "assets"
	}

	// If running from cmd/imgclassify, go up two levels
	if filepath.Base(wd) == "imgclassify" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return filepath.Join(wd, "assets")
}

// Default returns a Config populated with the default layout and settings.
func Default() *Config {
	return &Config{
		Assets: AssetsConfig{
			Root:         DefaultAssetsRoot(),
			Images:       DefaultImagesDir,
			TrainTags:    DefaultTrainTags,
			TestTags:     DefaultTestTags,
			PredictImage: DefaultPredictImage,
		},
		Model: ModelConfig{
			Path:              DefaultModelPath,
			Input:             DefaultInput,
			Outputs:           []string{DefaultOutput},
			AddBatchDimension: true,
			CacheSize:         DefaultCacheSize,
		},
		Preprocess: PreprocessConfig{
			Width:         DefaultImageSize,
			Height:        DefaultImageSize,
			Offset:        DefaultOffset,
			Scale:         1,
			ChannelsLast:  true,
			Order:         "rgb",
			Resizing:      ResizeIsoCrop,
			Interpolation: "bilinear",
		},
		Trainer: TrainerConfig{
			L2:            1,
			Tolerance:     1e-7,
			History:       20,
			MaxIterations: 1000,
			LabelOrdering: OrderByOccurrence,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
