package model

import "errors"

// Error definitions for the model package.
var (
	ErrFormat         = errors.New("unsupported model format")
	ErrTensorNotFound = errors.New("tensor not found in model")
	ErrShape          = errors.New("tensor shape mismatch")
	ErrOutputType     = errors.New("unsupported output tensor type")
)
