// Package container reads packets out of and writes packets into stream
// containers.
package container

import (
	"errors"
	"fmt"

	"github.com/harshabose/avpipe/pkg/media"
)

var (
	ErrNoStreams     = errors.New("container: no streams")
	ErrInvalidStream = errors.New("container: invalid stream index")
	ErrInvalidState  = errors.New("container: invalid muxer state")
	ErrNotSeekable   = errors.New("container: input is not seekable")
	ErrCapability    = errors.New("container: io capability missing")
)

// StreamInfo describes one elementary stream.
type StreamInfo struct {
	Index int
	// Codec names the codec the way the transcode registry knows it.
	Codec     string
	Format    media.Format
	FrameRate media.Rational
	BitRate   int64
	ExtraData []byte
	// DisplayMatrix is the 16.16 display transform of video streams, nil
	// when the container carries none.
	DisplayMatrix *[9]int32
}

func (s StreamInfo) TimeBase() media.Rational {
	return s.Format.TimeBase
}

func (s StreamInfo) String() string {
	return fmt.Sprintf("#%d %s %s", s.Index, s.Codec, s.Format)
}

// Demuxer yields the packets of a container in file order.
type Demuxer interface {
	Streams() []StreamInfo
	// ReadPacket overwrites packet with the next packet. It returns io.EOF
	// once the input is exhausted.
	ReadPacket(packet *media.Packet) error
	// Seek moves to the packet containing ts, expressed in the time base of
	// streamIndex. Stages fed by the demuxer must be flushed afterwards.
	Seek(streamIndex int, ts int64) error
	Close() error
}

// Muxer writes packets into a container. The header needs at least one
// stream, packets need the header and the trailer ends the output.
type Muxer interface {
	AddStream(info StreamInfo) (int, error)
	WriteHeader() error
	WritePacket(packet *media.Packet) error
	WriteTrailer() error
}

// PCMCodec returns the raw codec name for packed samples of format sf.
func PCMCodec(sf media.SampleFormat) (string, error) {
	switch sf.Packed() {
	case media.SampleFormatU8:
		return "pcm_u8", nil
	case media.SampleFormatS16:
		return "pcm_s16le", nil
	case media.SampleFormatS32:
		return "pcm_s32le", nil
	case media.SampleFormatFLT:
		return "pcm_f32le", nil
	case media.SampleFormatDBL:
		return "pcm_f64le", nil
	}
	return "", fmt.Errorf("no pcm codec for %s: %w", sf, media.ErrInvalidFormat)
}
