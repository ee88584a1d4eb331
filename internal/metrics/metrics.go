// Package metrics scores multiclass predictions against their true labels.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/Brownie44l1/imgclassify/internal/labels"
)

// Epsilon clamps probabilities before taking logarithms.
const Epsilon = 1e-15

// Error definitions for the metrics package.
var (
	ErrEmpty        = errors.New("no predictions to evaluate")
	ErrUnknownLabel = errors.New("label was not seen during training")
	ErrScores       = errors.New("score vector length does not match classes")
)

// Scored is one prediction to evaluate.
type Scored struct {
	Label  string
	Scores []float32
}

// Metrics summarizes a multiclass evaluation. Per-class slices are indexed
// by label key.
type Metrics struct {
	Classes []string

	LogLoss          float64
	PerClassLogLoss  []float64
	LogLossReduction float64

	MicroAccuracy float64
	MacroAccuracy float64

	// ConfusionMatrix[truth][predicted] counts predictions.
	ConfusionMatrix [][]int
}

// Evaluate computes Metrics for samples. It does not modify its inputs.
func Evaluate(keys *labels.KeyMap, samples []Scored) (*Metrics, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}

	n := keys.Len()
	m := &Metrics{
		Classes:         keys.Values(),
		PerClassLogLoss: make([]float64, n),
		ConfusionMatrix: make([][]int, n),
	}
	for k := range m.ConfusionMatrix {
		m.ConfusionMatrix[k] = make([]int, n)
	}

	counts := make([]int, n)
	var total float64
	var correct int
	for i, s := range samples {
		truth, ok := keys.Key(s.Label)
		if !ok {
			return nil, fmt.Errorf("%w: sample %d has label %q", ErrUnknownLabel, i, s.Label)
		}
		if len(s.Scores) != n {
			return nil, fmt.Errorf("%w: sample %d has %d scores, %d classes", ErrScores, i, len(s.Scores), n)
		}

		loss := -math.Log(math.Max(float64(s.Scores[truth]), Epsilon))
		total += loss
		m.PerClassLogLoss[truth] += loss
		counts[truth]++

		predicted := Argmax(s.Scores)
		m.ConfusionMatrix[truth][predicted]++
		if predicted == truth {
			correct++
		}
	}

	m.LogLoss = total / float64(len(samples))
	m.MicroAccuracy = float64(correct) / float64(len(samples))

	var prior, recall float64
	var present int
	for k, c := range counts {
		if c == 0 {
			continue
		}
		m.PerClassLogLoss[k] /= float64(c)

		p := float64(c) / float64(len(samples))
		prior -= p * math.Log(p)

		recall += float64(m.ConfusionMatrix[k][k]) / float64(c)
		present++
	}
	m.MacroAccuracy = recall / float64(present)
	if prior > 0 {
		m.LogLossReduction = 1 - m.LogLoss/prior
	}

	return m, nil
}

// Argmax returns the index of the highest score, the lowest index on ties.
func Argmax(scores []float32) int {
	best := 0
	for k, s := range scores {
		if s > scores[best] {
			best = k
		}
	}
	return best
}
