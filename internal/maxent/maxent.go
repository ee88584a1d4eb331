// Package maxent trains multinomial logistic regression (maximum entropy)
// classifiers with L-BFGS.
package maxent

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Error definitions for the maxent package.
var (
	ErrNoSamples = errors.New("no training samples")
	ErrDimension = errors.New("feature vector length mismatch")
	ErrKey       = errors.New("label key out of range")
	ErrOptimize  = errors.New("optimization failed")
)

// Sample is one training example: an embedding and its label key.
type Sample struct {
	Features []float32
	Key      int
}

// Options tunes Train.
type Options struct {
	// L2 weighs the 0.5*||W||^2 penalty. Biases are not penalized.
	L2 float64
	// Tolerance bounds both the gradient norm and the relative change of
	// the objective at convergence.
	Tolerance float64
	// History is the number of L-BFGS correction pairs kept.
	History int
	// MaxIterations caps major iterations. Zero means no cap.
	MaxIterations int
}

// DefaultOptions returns the trainer defaults.
func DefaultOptions() Options {
	return Options{
		L2:            1,
		Tolerance:     1e-7,
		History:       20,
		MaxIterations: 1000,
	}
}

// Classifier holds the weights of a fitted model: one row of Features
// weights plus a bias per class.
type Classifier struct {
	weights  []float64
	classes  int
	features int
}

// Classes returns the number of classes.
func (c *Classifier) Classes() int { return c.classes }

// Features returns the expected embedding length.
func (c *Classifier) Features() int { return c.features }

// Scores returns the class probabilities for x. They sum to 1.
func (c *Classifier) Scores(x []float32) ([]float32, error) {
	if len(x) != c.features {
		return nil, fmt.Errorf("%w: classifier expects %d, got %d", ErrDimension, c.features, len(x))
	}

	xs := toFloat64(x)
	logits := make([]float64, c.classes)
	logits64(logits, c.weights, xs, c.features)
	softmax(logits)

	scores := make([]float32, c.classes)
	for k, p := range logits {
		scores[k] = float32(p)
	}
	return scores, nil
}

// Train fits a Classifier over samples whose keys lie in [0, classes).
// The run is deterministic for a given sample order.
func Train(samples []Sample, classes int, opts Options) (*Classifier, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if classes <= 0 {
		return nil, fmt.Errorf("%w: %d classes", ErrKey, classes)
	}

	features := len(samples[0].Features)
	obj := &objective{
		xs:       make([][]float64, len(samples)),
		keys:     make([]int, len(samples)),
		classes:  classes,
		features: features,
		l2:       opts.L2,
	}
	for i, s := range samples {
		if len(s.Features) != features {
			return nil, fmt.Errorf("%w: sample %d has %d features, expected %d", ErrDimension, i, len(s.Features), features)
		}
		if s.Key < 0 || s.Key >= classes {
			return nil, fmt.Errorf("%w: sample %d has key %d, classes %d", ErrKey, i, s.Key, classes)
		}
		obj.xs[i] = toFloat64(s.Features)
		obj.keys[i] = s.Key
	}

	c := &Classifier{
		weights:  make([]float64, classes*(features+1)),
		classes:  classes,
		features: features,
	}
	if classes == 1 {
		slog.Warn("Training set has a single class; every score will be 1")
		return c, nil
	}

	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		GradientThreshold: opts.Tolerance,
		MajorIterations:   opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Relative:   opts.Tolerance,
			Iterations: 5,
		},
	}
	method := &optimize.LBFGS{Store: opts.History}

	start := time.Now()
	res, err := optimize.Minimize(problem, c.weights, settings, method)
	if err != nil {
		if res == nil || math.IsNaN(res.F) || math.IsInf(res.F, 0) {
			return nil, fmt.Errorf("%w: %v", ErrOptimize, err)
		}
		slog.Warn("L-BFGS stopped early, keeping last iterate", "status", res.Status.String(), "error", err)
	}

	slog.Info("Classifier trained",
		"samples", len(samples),
		"classes", classes,
		"features", features,
		"iterations", res.Stats.MajorIterations,
		"loss", res.F,
		"status", res.Status.String(),
		"elapsed", time.Since(start),
	)

	copy(c.weights, res.X)
	return c, nil
}

// objective is the summed negative log-likelihood plus the L2 penalty.
type objective struct {
	xs       [][]float64
	keys     []int
	classes  int
	features int
	l2       float64
}

func (o *objective) Func(w []float64) float64 {
	logits := make([]float64, o.classes)
	var loss float64
	for i, x := range o.xs {
		logits64(logits, w, x, o.features)
		loss += floats.LogSumExp(logits) - logits[o.keys[i]]
	}
	return loss + 0.5*o.l2*o.penalty(w)
}

func (o *objective) Grad(grad, w []float64) {
	for i := range grad {
		grad[i] = 0
	}
	stride := o.features + 1
	probs := make([]float64, o.classes)
	for i, x := range o.xs {
		logits64(probs, w, x, o.features)
		softmax(probs)
		for k := 0; k < o.classes; k++ {
			coeff := probs[k]
			if k == o.keys[i] {
				coeff--
			}
			row := grad[k*stride : (k+1)*stride]
			floats.AddScaled(row[:o.features], coeff, x)
			row[o.features] += coeff
		}
	}
	for k := 0; k < o.classes; k++ {
		row := grad[k*stride : k*stride+o.features]
		floats.AddScaled(row, o.l2, w[k*stride:k*stride+o.features])
	}
}

func (o *objective) penalty(w []float64) float64 {
	stride := o.features + 1
	var sum float64
	for k := 0; k < o.classes; k++ {
		row := w[k*stride : k*stride+o.features]
		sum += floats.Dot(row, row)
	}
	return sum
}

// logits64 fills dst with W·x + b for each class.
func logits64(dst, w, x []float64, features int) {
	stride := features + 1
	for k := range dst {
		row := w[k*stride : (k+1)*stride]
		dst[k] = floats.Dot(row[:features], x) + row[features]
	}
}

// softmax replaces logits with probabilities in place.
func softmax(logits []float64) {
	lse := floats.LogSumExp(logits)
	for k, z := range logits {
		logits[k] = math.Exp(z - lse)
	}
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}
