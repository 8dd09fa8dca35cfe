package media

import "errors"

var (
	ErrAllocate       = errors.New("media: allocation failed")
	ErrInvalidFormat  = errors.New("media: invalid format")
	ErrFormatMismatch = errors.New("media: format mismatch")
	ErrRange          = errors.New("media: value out of range")
	ErrFrameAllocated = errors.New("media: frame already holds storage")
	ErrEmptyFrame     = errors.New("media: frame has no storage")
)
