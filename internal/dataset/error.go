package dataset

import "errors"

// Error definitions for the dataset package.
var (
	ErrMalformedRow = errors.New("malformed tag row")
	ErrEmpty        = errors.New("tag file has no rows")
)
