package transcode

import (
	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/media"
)

// Unit is what flows through a stage: packets into decoders and out of
// encoders, frames the other way.
type Unit interface {
	*media.Packet | *media.Frame
	IsEmpty() bool
}

// Engine is the codec behind a stage. The stage owns the state machine; an
// engine only converts.
//
// Send receives nil at end of stream and returns ErrAgain when it cannot
// take more input until outputs are received. Receive fills out and returns
// ErrAgain when it needs more input, or ErrEOF once everything buffered after
// end of stream was handed out.
type Engine[I, O Unit] interface {
	Open(config Config, device *hwcontext.Device) error
	Send(in I) error
	Receive(out O) error
	Flush()
	Close() error
}

type (
	DecoderEngine = Engine[*media.Packet, *media.Frame]
	EncoderEngine = Engine[*media.Frame, *media.Packet]
)

// CanDescribeFrameSize is implemented by encoder engines that consume fixed
// size audio frames.
type CanDescribeFrameSize interface {
	FrameSize() int
}

// CanGetParameterSets is implemented by video encoders producing H.264
// parameter sets out of band.
type CanGetParameterSets interface {
	GetParameterSets() (sps, pps []byte, err error)
}

func isNil[T Unit](u T) bool {
	switch v := any(u).(type) {
	case *media.Packet:
		return v == nil
	case *media.Frame:
		return v == nil
	}
	return true
}

// isEndOfStream reports whether u signals end of stream: nil or empty.
func isEndOfStream[T Unit](u T) bool {
	return isNil(u) || u.IsEmpty()
}

func reset[T Unit](u T) {
	switch v := any(u).(type) {
	case *media.Packet:
		v.Clear()
	case *media.Frame:
		v.Unref()
	}
}

// moveUnit transfers src into dst, leaving src empty.
func moveUnit[T Unit](dst, src T) {
	switch d := any(dst).(type) {
	case *media.Packet:
		any(src).(*media.Packet).MoveTo(d)
	case *media.Frame:
		d.MoveRef(any(src).(*media.Frame))
	}
}
