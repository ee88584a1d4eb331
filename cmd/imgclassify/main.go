package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/Brownie44l1/imgclassify/internal/config"
	"github.com/Brownie44l1/imgclassify/internal/dataset"
	"github.com/Brownie44l1/imgclassify/internal/imageproc"
	"github.com/Brownie44l1/imgclassify/internal/logger"
	"github.com/Brownie44l1/imgclassify/internal/model"
	"github.com/Brownie44l1/imgclassify/internal/pipeline"
	"github.com/Brownie44l1/imgclassify/internal/report"
)

type args struct {
	Config   string `arg:"--config" help:"YAML config file; defaults are used when empty"`
	Assets   string `arg:"--assets" help:"assets root directory"`
	Model    string `arg:"--model" help:"frozen network file (.pb or .onnx)"`
	Image    string `arg:"--image" help:"image to classify after training, relative to the working directory"`
	LogLevel string `arg:"--log-level" help:"debug, info, warn or error"`
}

func (args) Description() string {
	return "Fine-tunes a classifier head on top of a frozen image network, evaluates it and classifies one image."
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := loadConfig(a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closer := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
		logger.WithNoColor(cfg.Log.NoColor),
		logger.WithLogFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups),
	)
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, report.New(os.Stdout), model.Open); err != nil {
		slog.Error("Run failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func loadConfig(a args) (*config.Config, error) {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if a.Assets != "" {
		cfg.Assets.Root = a.Assets
	}
	if a.Model != "" {
		cfg.Model.Path = a.Model
	}
	if a.Image != "" {
		image, err := filepath.Abs(a.Image)
		if err != nil {
			return nil, fmt.Errorf("invalid --image path: %w", err)
		}
		cfg.Assets.PredictImage = image
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// opener loads the feature network described by a spec.
type opener func(model.Spec) (model.Extractor, error)

func run(ctx context.Context, cfg *config.Config, out *report.Writer, open opener) error {
	pre, err := imageproc.New(cfg.Preprocess)
	if err != nil {
		return err
	}

	spec := model.NewSpec(cfg, pre.Shape(cfg.Model.AddBatchDimension))
	extractor, err := open(spec)
	if err != nil {
		return fmt.Errorf("failed to load feature network: %w", err)
	}
	defer func() {
		if err := extractor.Close(); err != nil {
			slog.Warn("Failed to release feature network", "error", err)
		}
	}()

	estimator, err := pipeline.NewEstimator(cfg, pre, extractor)
	if err != nil {
		return err
	}

	train, err := dataset.LoadFile(cfg.TrainTags())
	if err != nil {
		return fmt.Errorf("failed to load training set: %w", err)
	}

	out.Section(report.TitleTraining)

	trained, err := estimator.Fit(ctx, train)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	test, err := dataset.LoadFile(cfg.TestTags())
	if err != nil {
		return fmt.Errorf("failed to load test set: %w", err)
	}

	predictions, err := trained.Transform(ctx, test)
	if err != nil {
		return fmt.Errorf("scoring test set failed: %w", err)
	}
	out.Predictions(predictions)

	out.Section(report.TitleMetrics)

	metrics, err := trained.Evaluate(predictions)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	out.Metrics(metrics)

	slog.Info("Model evaluated",
		"log_loss", metrics.LogLoss,
		"micro_accuracy", metrics.MicroAccuracy,
		"test_images", len(test),
	)

	if cfg.Assets.PredictImage == "" {
		return nil
	}

	prediction, err := trained.Predict(ctx, cfg.PredictImage())
	if err != nil {
		return fmt.Errorf("single image prediction failed: %w", err)
	}

	out.Section(report.TitlePrediction)
	out.Prediction(prediction)

	return nil
}
