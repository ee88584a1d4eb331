package pipeline

import (
	"image"

	"github.com/Brownie44l1/imgclassify/internal/dataset"
)

// Row carries one image through the stages. Each stage fills the columns it
// owns and clears the ones no later stage needs.
type Row struct {
	Record dataset.ImageRecord

	Image    image.Image
	Pixels   []float32
	Features []float32

	// Key is the label key, -1 for unlabeled rows or labels unknown to the
	// key map.
	Key int

	Scores       []float32
	PredictedKey int
	Predicted    string
}

func newRows(records []dataset.ImageRecord) []*Row {
	rows := make([]*Row, len(records))
	for i, rec := range records {
		rows[i] = &Row{Record: rec, Key: -1, PredictedKey: -1}
	}
	return rows
}

// Prediction is the output of a trained model for one image.
type Prediction struct {
	dataset.ImageRecord

	// Scores holds one probability per training label, indexed by key.
	Scores         []float32
	PredictedLabel string
}

// Score returns the probability of the predicted label.
func (p Prediction) Score() float32 {
	var best float32
	for i, s := range p.Scores {
		if i == 0 || s > best {
			best = s
		}
	}
	return best
}
