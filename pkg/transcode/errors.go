package transcode

import "errors"

var (
	// ErrConfiguration reports a configuration the codec cannot work with.
	ErrConfiguration = errors.New("transcode: invalid configuration")
	// ErrInvalidOperation reports a call the stage's current state forbids.
	ErrInvalidOperation = errors.New("transcode: invalid operation")
	ErrUnknownCodec     = errors.New("transcode: unknown codec")
	ErrInvalidData      = errors.New("transcode: invalid data")

	// ErrAgain and ErrEOF are returned by engines only. Stages turn them into
	// statuses.
	ErrAgain = errors.New("transcode: resource temporarily unavailable")
	ErrEOF   = errors.New("transcode: end of stream")
)
