package imageproc

import "errors"

// Error definitions for the imageproc package.
var (
	ErrDecode  = errors.New("image could not be decoded")
	ErrOptions = errors.New("invalid preprocessing options")
)
