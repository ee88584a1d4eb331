package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/imgclassify/internal/config"
	"github.com/Brownie44l1/imgclassify/internal/dataset"
	"github.com/Brownie44l1/imgclassify/internal/imageproc"
	"github.com/Brownie44l1/imgclassify/internal/metrics"
	"github.com/Brownie44l1/imgclassify/internal/model"
)

// --- Test extractors ---

// meanExtractor stands in for the frozen network: the embedding is the mean
// of each interleaved color channel.
type meanExtractor struct{}

func (meanExtractor) Extract(pixels []float32) ([]float32, error) {
	var sums [3]float64
	for i, v := range pixels {
		sums[i%3] += float64(v)
	}
	n := float64(len(pixels) / 3)
	return []float32{
		float32(sums[0] / n / 100),
		float32(sums[1] / n / 100),
		float32(sums[2] / n / 100),
	}, nil
}

func (meanExtractor) InputShape() []int64 { return nil }

func (meanExtractor) Close() error { return nil }

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(pixels []float32) ([]float32, error) {
	args := m.Called(pixels)
	if features, ok := args.Get(0).([]float32); ok {
		return features, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExtractor) InputShape() []int64 {
	args := m.Called()
	if shape, ok := args.Get(0).([]int64); ok {
		return shape
	}
	return nil
}

func (m *MockExtractor) Close() error {
	return m.Called().Error(0)
}

// --- Fixtures ---

func writeSolid(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 18))
	for y := 0; y < 18; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// Only the green channel tells the two labels apart.
func toasterColor(i int) color.RGBA { return color.RGBA{R: uint8(200 + 5*i), G: 40, B: 60, A: 255} }
func hotdogColor(i int) color.RGBA  { return color.RGBA{R: uint8(200 + 5*i), G: uint8(200 - 5*i), B: 60, A: 255} }

type fixture struct {
	cfg   *config.Config
	train []dataset.ImageRecord
	test  []dataset.ImageRecord
}

// newFixture writes 10 training and 4 disjoint test images of two labels.
func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	images := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(images, 0o755))

	var f fixture
	for i := 0; i < 7; i++ {
		toaster := fmt.Sprintf("toaster%d.png", i)
		hotdog := fmt.Sprintf("hotdog%d.png", i)
		writeSolid(t, filepath.Join(images, toaster), toasterColor(i))
		writeSolid(t, filepath.Join(images, hotdog), hotdogColor(i))

		if i < 5 {
			f.train = append(f.train,
				dataset.ImageRecord{Path: toaster, Label: "toaster"},
				dataset.ImageRecord{Path: hotdog, Label: "hotdog"},
			)
		} else {
			f.test = append(f.test,
				dataset.ImageRecord{Path: toaster, Label: "toaster"},
				dataset.ImageRecord{Path: hotdog, Label: "hotdog"},
			)
		}
	}

	f.cfg = config.Default()
	f.cfg.Assets.Root = root
	f.cfg.Preprocess.Width, f.cfg.Preprocess.Height = 16, 16
	f.cfg.Trainer.L2 = 0.01
	return f
}

func newEstimator(t *testing.T, cfg *config.Config, extractor model.Extractor) *Estimator {
	t.Helper()
	pre, err := imageproc.New(cfg.Preprocess)
	require.NoError(t, err)
	est, err := NewEstimator(cfg, pre, extractor)
	require.NoError(t, err)
	return est
}

// --- Tests ---

func TestRun_ExecutesInOrder(t *testing.T) {
	var order []string
	record := func(name string) Stage {
		return NewRowStage(name, func(r *Row) error {
			order = append(order, name+":"+r.Record.Path)
			return nil
		})
	}

	rows := newRows([]dataset.ImageRecord{{Path: "a"}, {Path: "b"}})
	out, err := Run(context.Background(), []Stage{record("first"), record("second")}, rows)
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, []string{"first:a", "first:b", "second:a", "second:b"}, order)
}

func TestRun_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var ran bool

	stages := []Stage{
		NewRowStage("fails", func(r *Row) error { return boom }),
		NewRowStage("never", func(r *Row) error { ran = true; return nil }),
	}

	_, err := Run(context.Background(), stages, newRows([]dataset.ImageRecord{{Path: "x.png"}}))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage fails")
	assert.Contains(t, err.Error(), "x.png")
	assert.False(t, ran)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stages := []Stage{NewRowStage("noop", func(r *Row) error { return nil })}
	_, err := Run(ctx, stages, newRows([]dataset.ImageRecord{{Path: "a"}}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimator_FitTransformEvaluate(t *testing.T) {
	f := newFixture(t)
	require.Len(t, f.train, 10)
	require.Len(t, f.test, 4)

	fitted, err := newEstimator(t, f.cfg, meanExtractor{}).Fit(context.Background(), f.train)
	require.NoError(t, err)

	assert.Equal(t, []string{"toaster", "hotdog"}, fitted.Labels())
	assert.Equal(t, []string{
		StageLoadImages, StageResizeImages, StageExtractPixels, StageScoreModel,
		StageValueToKey, StageClassify, StageKeyToValue,
	}, fitted.Stages())

	predictions, err := fitted.Transform(context.Background(), f.test)
	require.NoError(t, err)
	require.Len(t, predictions, 4)

	for i, p := range predictions {
		assert.Equal(t, f.test[i], p.ImageRecord)
		assert.Len(t, p.Scores, 2)
		assert.Contains(t, fitted.Labels(), p.PredictedLabel)
		assert.Equal(t, p.Label, p.PredictedLabel, p.Path)
	}

	m, err := fitted.Evaluate(predictions)
	require.NoError(t, err)
	assert.Len(t, m.PerClassLogLoss, 2)
	assert.Equal(t, 1.0, m.MicroAccuracy)
	assert.Greater(t, m.LogLossReduction, 0.0)
}

func TestModel_Predict(t *testing.T) {
	f := newFixture(t)
	fitted, err := newEstimator(t, f.cfg, meanExtractor{}).Fit(context.Background(), f.train)
	require.NoError(t, err)

	// A toaster image outside the images folder, addressed by absolute path.
	path := filepath.Join(t.TempDir(), "toaster3.png")
	writeSolid(t, path, toasterColor(3))

	p, err := fitted.Predict(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, p.Path)
	assert.Equal(t, "toaster", p.PredictedLabel)
	for _, s := range p.Scores {
		assert.GreaterOrEqual(t, p.Score(), s)
	}
	assert.Equal(t, p.Scores[metrics.Argmax(p.Scores)], p.Score())

	t.Run("relative to images folder", func(t *testing.T) {
		p, err := fitted.Predict(context.Background(), "hotdog6.png")
		require.NoError(t, err)
		assert.Equal(t, "hotdog", p.PredictedLabel)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := fitted.Predict(context.Background(), "nowhere.png")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("undecodable image", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.jpg")
		require.NoError(t, os.WriteFile(bad, []byte("jpeg?"), 0o644))
		_, err := fitted.Predict(context.Background(), bad)
		assert.ErrorIs(t, err, imageproc.ErrDecode)
	})
}

func TestEstimator_LabelOrderingByValue(t *testing.T) {
	f := newFixture(t)
	f.cfg.Trainer.LabelOrdering = config.OrderByValue

	fitted, err := newEstimator(t, f.cfg, meanExtractor{}).Fit(context.Background(), f.train)
	require.NoError(t, err)
	assert.Equal(t, []string{"hotdog", "toaster"}, fitted.Labels())
}

func TestScoreModel_CachesEmbeddings(t *testing.T) {
	f := newFixture(t)
	records := f.train[:2]

	ex := new(MockExtractor)
	ex.On("InputShape").Return([]int64{1, 16, 16, 3})
	ex.On("Extract", mock.Anything).Return([]float32{1, 2}, nil).Times(2)

	fitted, err := newEstimator(t, f.cfg, ex).Fit(context.Background(), records)
	require.NoError(t, err)

	_, err = fitted.Transform(context.Background(), records)
	require.NoError(t, err)

	ex.AssertNumberOfCalls(t, "Extract", 2)
	hits, misses := fitted.cache.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 2, misses)
}

func TestScoreModel_CacheDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Model.CacheSize = 0
	records := f.train[:2]

	ex := new(MockExtractor)
	ex.On("InputShape").Return([]int64{1, 16, 16, 3})
	ex.On("Extract", mock.Anything).Return([]float32{1, 2}, nil)

	fitted, err := newEstimator(t, f.cfg, ex).Fit(context.Background(), records)
	require.NoError(t, err)
	_, err = fitted.Transform(context.Background(), records)
	require.NoError(t, err)

	ex.AssertNumberOfCalls(t, "Extract", 4)
}

func TestFit_ExtractorError(t *testing.T) {
	f := newFixture(t)
	failure := errors.New("tensor input not bound")

	ex := new(MockExtractor)
	ex.On("InputShape").Return([]int64{1, 16, 16, 3})
	ex.On("Extract", mock.Anything).Return(nil, failure).Once()

	_, err := newEstimator(t, f.cfg, ex).Fit(context.Background(), f.train)
	require.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), StageScoreModel)
	ex.AssertExpectations(t)
}

func TestEvaluate_UnknownTestLabel(t *testing.T) {
	f := newFixture(t)
	fitted, err := newEstimator(t, f.cfg, meanExtractor{}).Fit(context.Background(), f.train)
	require.NoError(t, err)

	test := []dataset.ImageRecord{{Path: "toaster6.png", Label: "teddy"}}
	predictions, err := fitted.Transform(context.Background(), test)
	require.NoError(t, err)

	_, err = fitted.Evaluate(predictions)
	assert.ErrorIs(t, err, metrics.ErrUnknownLabel)
}

func TestPrediction_Score(t *testing.T) {
	assert.Equal(t, float32(0.7), Prediction{Scores: []float32{0.1, 0.7, 0.2}}.Score())
	assert.Zero(t, Prediction{}.Score())
}

func TestEmbeddingCache_Nil(t *testing.T) {
	var c *EmbeddingCache
	c.Add([]float32{1}, []float32{2})
	_, ok := c.Get([]float32{1})
	assert.False(t, ok)

	c, err := NewEmbeddingCache(0)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestEmbeddingCache_KeysByContent(t *testing.T) {
	c, err := NewEmbeddingCache(4)
	require.NoError(t, err)

	c.Add([]float32{1, 2, 3}, []float32{9})
	got, ok := c.Get([]float32{1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, []float32{9}, got)

	_, ok = c.Get([]float32{1, 2, 4})
	assert.False(t, ok)
}

func TestNewEstimator_InputShapeMismatch(t *testing.T) {
	f := newFixture(t)
	pre, err := imageproc.New(f.cfg.Preprocess)
	require.NoError(t, err)

	ex := new(MockExtractor)
	ex.On("InputShape").Return([]int64{1, 224, 224, 3})

	_, err = NewEstimator(f.cfg, pre, ex)
	require.ErrorIs(t, err, model.ErrShape)
	ex.AssertNotCalled(t, "Extract", mock.Anything)
}
