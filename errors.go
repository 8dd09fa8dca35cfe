package avpipe

import "errors"

var (
	ErrNoStreams     = errors.New("avpipe: no stream to process")
	ErrAllFailed     = errors.New("avpipe: every stream failed")
	ErrInvalidState  = errors.New("avpipe: invalid pipeline state")
	ErrUnknownStream = errors.New("avpipe: unknown stream")
)

// ErrMuxer wraps write failures of the output container. They end the whole
// pipeline, unlike per stream failures.
var ErrMuxer = errors.New("avpipe: muxer failed")
