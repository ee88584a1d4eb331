package pipeline

import "errors"

// Error definitions for the pipeline package.
var (
	ErrNoFeatures = errors.New("row has no features")
	ErrNoScores   = errors.New("row has no scores")
)
