// Package report writes the human-readable results of a run.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/imgclassify/internal/metrics"
	"github.com/Brownie44l1/imgclassify/internal/pipeline"
)

// Section titles printed by the program.
const (
	TitleTraining   = "Training classification model"
	TitleMetrics    = "Classification metrics"
	TitlePrediction = "Making single image classification"
)

// Writer prints banners, predictions and metrics.
type Writer struct {
	w io.Writer
}

// New returns a Writer on w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Section prints a banner line.
func (r *Writer) Section(title string) {
	fmt.Fprintf(r.w, "=============== %s ===============\n", title)
}

// Prediction prints `<filename> class: <label> probability: <score>`.
func (r *Writer) Prediction(p pipeline.Prediction) {
	fmt.Fprintf(r.w, "%s class: %s probability: %s\n",
		filepath.Base(p.Path), p.PredictedLabel, formatScore(float64(p.Score())))
}

// Predictions prints one line per prediction.
func (r *Writer) Predictions(predictions []pipeline.Prediction) {
	for _, p := range predictions {
		r.Prediction(p)
	}
}

// Metrics prints the log-loss figures followed by accuracy and the
// confusion matrix.
func (r *Writer) Metrics(m *metrics.Metrics) {
	perClass := make([]string, len(m.PerClassLogLoss))
	for i, v := range m.PerClassLogLoss {
		perClass[i] = formatScore(v)
	}

	fmt.Fprintf(r.w, "LogLoss: %s\n", formatScore(m.LogLoss))
	fmt.Fprintf(r.w, "PerClassLogLoss: %s\n", strings.Join(perClass, " , "))
	fmt.Fprintf(r.w, "LogLossReduction: %s\n", formatScore(m.LogLossReduction))
	fmt.Fprintf(r.w, "MicroAccuracy: %s\n", formatScore(m.MicroAccuracy))
	fmt.Fprintf(r.w, "MacroAccuracy: %s\n", formatScore(m.MacroAccuracy))

	width := 0
	for _, c := range m.Classes {
		width = max(width, len(c))
	}
	fmt.Fprintf(r.w, "Confusion matrix (rows: truth, columns: predicted)\n")
	fmt.Fprintf(r.w, "%-*s", width+2, "")
	for _, c := range m.Classes {
		fmt.Fprintf(r.w, " %*s", width, c)
	}
	fmt.Fprintln(r.w)
	for i, row := range m.ConfusionMatrix {
		fmt.Fprintf(r.w, "%-*s", width+2, m.Classes[i])
		for _, n := range row {
			fmt.Fprintf(r.w, " %*s", width, humanize.Comma(int64(n)))
		}
		fmt.Fprintln(r.w)
	}
}

func formatScore(v float64) string {
	return humanize.FtoaWithDigits(v, 6)
}
