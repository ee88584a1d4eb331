package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/imgclassify/internal/config"
	"github.com/Brownie44l1/imgclassify/internal/dataset"
	"github.com/Brownie44l1/imgclassify/internal/imageproc"
	"github.com/Brownie44l1/imgclassify/internal/labels"
	"github.com/Brownie44l1/imgclassify/internal/maxent"
	"github.com/Brownie44l1/imgclassify/internal/metrics"
	"github.com/Brownie44l1/imgclassify/internal/model"
)

// Estimator describes the untrained pipeline: preprocessing, the frozen
// network and the classifier trainer settings.
type Estimator struct {
	imagesDir string
	pre       *imageproc.Preprocessor
	extractor model.Extractor
	cache     *EmbeddingCache
	ordering  labels.Ordering
	trainer   maxent.Options
}

// NewEstimator wires cfg, a preprocessor and an opened extractor into an
// Estimator.
//
// The extractor's input shape, when it declares one, must hold exactly the
// values the preprocessor produces.
func NewEstimator(cfg *config.Config, pre *imageproc.Preprocessor, extractor model.Extractor) (*Estimator, error) {
	if shape := extractor.InputShape(); len(shape) > 0 {
		if want, got := model.Elements(shape), model.Elements(pre.Shape(false)); want != got {
			return nil, fmt.Errorf("%w: network expects %v, preprocessing produces %v",
				model.ErrShape, shape, pre.Shape(false))
		}
	}

	cache, err := NewEmbeddingCache(cfg.Model.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Estimator{
		imagesDir: cfg.ImagesDir(),
		pre:       pre,
		extractor: extractor,
		cache:     cache,
		ordering:  labels.Ordering(cfg.Trainer.LabelOrdering),
		trainer: maxent.Options{
			L2:            cfg.Trainer.L2,
			Tolerance:     cfg.Trainer.Tolerance,
			History:       cfg.Trainer.History,
			MaxIterations: cfg.Trainer.MaxIterations,
		},
	}, nil
}

func (e *Estimator) featureStages() []Stage {
	return []Stage{
		LoadImages(e.imagesDir),
		ResizeImages(e.pre),
		ExtractPixels(e.pre),
		ScoreModel(e.extractor, e.cache),
	}
}

// Fit maps labels to keys, embeds every training image and trains the
// classifier head. The returned Model reuses the same feature stages.
func (e *Estimator) Fit(ctx context.Context, records []dataset.ImageRecord) (*Model, error) {
	keys, err := labels.Fit(dataset.Labels(records), e.ordering)
	if err != nil {
		return nil, fmt.Errorf("failed to map labels: %w", err)
	}

	slog.Info("Fitting pipeline",
		"images", humanize.Comma(int64(len(records))),
		"labels", keys.Values(),
	)

	stages := append(e.featureStages(), MapValueToKey(keys))
	rows, err := Run(ctx, stages, newRows(records))
	if err != nil {
		return nil, err
	}

	samples := make([]maxent.Sample, len(rows))
	for i, r := range rows {
		samples[i] = maxent.Sample{Features: r.Features, Key: r.Key}
	}

	classifier, err := maxent.Train(samples, keys.Len(), e.trainer)
	if err != nil {
		return nil, fmt.Errorf("failed to train classifier: %w", err)
	}

	return &Model{
		stages: append(stages, Classify(classifier), MapKeyToValue(keys)),
		keys:   keys,
		cache:  e.cache,
	}, nil
}

// Model is a fitted pipeline. It always applies the preprocessing it was
// trained with.
type Model struct {
	stages []Stage
	keys   *labels.KeyMap
	cache  *EmbeddingCache
}

// Labels returns the training labels in key order.
func (m *Model) Labels() []string {
	return m.keys.Values()
}

// KeyMap returns the label key mapping fitted at training time.
func (m *Model) KeyMap() *labels.KeyMap {
	return m.keys
}

// Stages returns the stage names in execution order.
func (m *Model) Stages() []string {
	names := make([]string, len(m.stages))
	for i, s := range m.stages {
		names[i] = s.Name()
	}
	return names
}

// Transform runs every stage over records and returns one Prediction per
// record, in order.
func (m *Model) Transform(ctx context.Context, records []dataset.ImageRecord) ([]Prediction, error) {
	rows, err := Run(ctx, m.stages, newRows(records))
	if err != nil {
		return nil, err
	}

	if hits, misses := m.cache.Stats(); hits+misses > 0 {
		slog.Debug("Embedding cache", "hits", hits, "misses", misses)
	}

	predictions := make([]Prediction, len(rows))
	for i, r := range rows {
		predictions[i] = Prediction{
			ImageRecord:    r.Record,
			Scores:         r.Scores,
			PredictedLabel: r.Predicted,
		}
	}
	return predictions, nil
}

// Predict classifies the single image at path.
func (m *Model) Predict(ctx context.Context, path string) (Prediction, error) {
	predictions, err := m.Transform(ctx, []dataset.ImageRecord{{Path: path}})
	if err != nil {
		return Prediction{}, err
	}
	return predictions[0], nil
}

// Evaluate scores labeled predictions against the model's key map.
func (m *Model) Evaluate(predictions []Prediction) (*metrics.Metrics, error) {
	scored := make([]metrics.Scored, len(predictions))
	for i, p := range predictions {
		scored[i] = metrics.Scored{Label: p.Label, Scores: p.Scores}
	}
	return metrics.Evaluate(m.keys, scored)
}
