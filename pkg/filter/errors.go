package filter

import "errors"

var (
	// ErrArity reports a node created with the wrong number of inputs.
	ErrArity = errors.New("filter: wrong number of inputs")
	// ErrLink reports a port that cannot be connected as asked: already
	// connected, wrong direction, foreign graph or left dangling.
	ErrLink = errors.New("filter: invalid link")
	// ErrInvalidState reports a call the graph's phase forbids, such as
	// mutating a configured graph.
	ErrInvalidState    = errors.New("filter: invalid graph state")
	ErrUnknownFilter   = errors.New("filter: unknown filter")
	ErrInvalidArgument = errors.New("filter: invalid argument")
	ErrParse           = errors.New("filter: cannot parse segment")
)
