package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Transform(ctx context.Context, rows []*Row) ([]*Row, error)
}

// Run executes stages in order, feeding each the output of the previous
// one, and stops at the first error.
func Run(ctx context.Context, stages []Stage, rows []*Row) ([]*Row, error) {
	for _, s := range stages {
		start := time.Now()

		out, err := s.Transform(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}

		slog.Debug("Stage complete", "stage", s.Name(), "rows", len(out), "elapsed", time.Since(start))
		rows = out
	}
	return rows, nil
}

// RowFn updates a single row in place.
type RowFn func(*Row) error

// rowStage is a Stage that applies a RowFn to each row.
type rowStage struct {
	name string
	fn   RowFn
}

// NewRowStage returns a Stage with name that applies fn once to each row.
func NewRowStage(name string, fn RowFn) Stage {
	return &rowStage{name: name, fn: fn}
}

// Name implements Stage
func (s *rowStage) Name() string {
	return s.name
}

// Transform implements Stage
func (s *rowStage) Transform(ctx context.Context, rows []*Row) ([]*Row, error) {
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.fn(r); err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, r.Record.Path, err)
		}
	}
	return rows, nil
}
