package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/Brownie44l1/imgclassify/internal/imageproc"
	"github.com/Brownie44l1/imgclassify/internal/labels"
	"github.com/Brownie44l1/imgclassify/internal/maxent"
	"github.com/Brownie44l1/imgclassify/internal/metrics"
	"github.com/Brownie44l1/imgclassify/internal/model"
)

// Stage names, in pipeline order.
const (
	StageLoadImages    = "load_images"
	StageResizeImages  = "resize_images"
	StageExtractPixels = "extract_pixels"
	StageScoreModel    = "score_model"
	StageValueToKey    = "map_value_to_key"
	StageClassify      = "classify"
	StageKeyToValue    = "map_key_to_value"
)

// LoadImages decodes each row's image. Relative paths resolve against dir.
func LoadImages(dir string) Stage {
	return NewRowStage(StageLoadImages, func(r *Row) error {
		img, err := imageproc.Load(resolvePath(dir, r.Record.Path))
		if err != nil {
			return err
		}
		r.Image = img
		return nil
	})
}

// ResizeImages scales each row's image to the preprocessor's size.
func ResizeImages(p *imageproc.Preprocessor) Stage {
	return NewRowStage(StageResizeImages, func(r *Row) error {
		r.Image = p.Resize(r.Image)
		return nil
	})
}

// ExtractPixels turns each row's image into the network input tensor and
// drops the image.
func ExtractPixels(p *imageproc.Preprocessor) Stage {
	return NewRowStage(StageExtractPixels, func(r *Row) error {
		r.Pixels = p.Pixels(r.Image)
		r.Image = nil
		return nil
	})
}

// ScoreModel runs the frozen network on each row's pixels and drops them.
func ScoreModel(extractor model.Extractor, cache *EmbeddingCache) Stage {
	return NewRowStage(StageScoreModel, func(r *Row) error {
		if features, ok := cache.Get(r.Pixels); ok {
			r.Features = features
			r.Pixels = nil
			return nil
		}

		features, err := extractor.Extract(r.Pixels)
		if err != nil {
			return err
		}
		cache.Add(r.Pixels, features)
		r.Features = features
		r.Pixels = nil
		return nil
	})
}

// MapValueToKey sets each row's key from its label.
func MapValueToKey(keys *labels.KeyMap) Stage {
	return NewRowStage(StageValueToKey, func(r *Row) error {
		r.Key = -1
		if k, ok := keys.Key(r.Record.Label); ok {
			r.Key = k
		}
		return nil
	})
}

// Classify scores each row's features with a trained classifier.
func Classify(c *maxent.Classifier) Stage {
	return NewRowStage(StageClassify, func(r *Row) error {
		if r.Features == nil {
			return ErrNoFeatures
		}
		scores, err := c.Scores(r.Features)
		if err != nil {
			return err
		}
		r.Scores = scores
		return nil
	})
}

// MapKeyToValue sets each row's predicted label from its best score.
func MapKeyToValue(keys *labels.KeyMap) Stage {
	return NewRowStage(StageKeyToValue, func(r *Row) error {
		if len(r.Scores) == 0 {
			return ErrNoScores
		}
		r.PredictedKey = metrics.Argmax(r.Scores)
		label, ok := keys.Value(r.PredictedKey)
		if !ok {
			return fmt.Errorf("predicted key %d has no label", r.PredictedKey)
		}
		r.Predicted = label
		return nil
	})
}

func resolvePath(dir, p string) string {
	if dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
