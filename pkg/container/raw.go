package container

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

type RawDemuxerOption = func(*RawDemuxer) error

// WithPacketSamples sets how many samples per channel one audio packet holds.
func WithPacketSamples(n int) RawDemuxerOption {
	return func(d *RawDemuxer) error {
		if n <= 0 {
			return fmt.Errorf("packet samples %d: %w", n, media.ErrRange)
		}
		d.samples = n
		return nil
	}
}

// RawDemuxer splits headerless PCM or raw video into fixed size packets. The
// single stream is described up front; timestamps count from zero in the
// stream time base.
type RawDemuxer struct {
	src        IO
	info       StreamInfo
	samples    int
	packetSize int
	step       int64
	next       int64
	closed     bool
}

func NewRawDemuxer(src IO, info StreamInfo, options ...RawDemuxerOption) (*RawDemuxer, error) {
	if !src.CanRead() {
		return nil, fmt.Errorf("raw demuxer without read: %w", ErrCapability)
	}

	d := &RawDemuxer{src: src, info: info, samples: 1024}
	for _, option := range options {
		if err := option(d); err != nil {
			return nil, err
		}
	}

	d.info.Index = 0
	f := &d.info.Format
	switch f.Type {
	case media.MediaTypeAudio:
		if err := f.Audio.Validate(); err != nil {
			return nil, err
		}
		if f.Audio.SampleFormat.IsPlanar() {
			return nil, fmt.Errorf("raw audio must be interleaved, got %s: %w", f.Audio.SampleFormat, media.ErrInvalidFormat)
		}
		if d.info.Codec == "" {
			codec, err := PCMCodec(f.Audio.SampleFormat)
			if err != nil {
				return nil, err
			}
			d.info.Codec = codec
		}
		if f.TimeBase.IsZero() {
			f.TimeBase = media.NewRational(1, f.Audio.SampleRate)
		}
		d.packetSize = d.samples * f.Audio.BlockAlign()
		d.step = media.Rescale(int64(d.samples), media.NewRational(1, f.Audio.SampleRate), f.TimeBase)
	case media.MediaTypeVideo:
		if err := f.Video.Validate(); err != nil {
			return nil, err
		}
		if d.info.Codec == "" {
			d.info.Codec = "rawvideo"
		}
		if f.TimeBase.IsZero() {
			if d.info.FrameRate.IsZero() {
				return nil, fmt.Errorf("raw video without time base or frame rate: %w", media.ErrInvalidFormat)
			}
			f.TimeBase = d.info.FrameRate.Invert()
		}
		d.packetSize = f.Video.ImageSize()
		d.step = 1
		if !d.info.FrameRate.IsZero() {
			d.step = media.Rescale(1, d.info.FrameRate.Invert(), f.TimeBase)
		}
	default:
		return nil, fmt.Errorf("raw stream of %s: %w", f.Type, media.ErrInvalidFormat)
	}
	if d.step <= 0 {
		d.step = 1
	}

	logging.WithComponent("container").WithFields(logrus.Fields{
		"stream":      d.info.String(),
		"packet_size": d.packetSize,
	}).Debug("raw demuxer ready")
	return d, nil
}

func (d *RawDemuxer) Streams() []StreamInfo {
	return []StreamInfo{d.info}
}

func (d *RawDemuxer) ReadPacket(packet *media.Packet) error {
	if d.closed {
		return fmt.Errorf("reading closed demuxer: %w", ErrInvalidState)
	}
	packet.Clear()

	buf := packet.Grow(d.packetSize)
	n, err := io.ReadFull(readFunc(d.src.Read), buf)
	switch {
	case errors.Is(err, io.EOF):
		packet.Clear()
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		if d.info.Format.Type == media.MediaTypeVideo {
			logging.WithComponent("container").WithField("bytes", n).Warn("dropping truncated picture")
			packet.Clear()
			return io.EOF
		}
		n -= n % d.info.Format.Audio.BlockAlign()
		if n == 0 {
			packet.Clear()
			return io.EOF
		}
	case err != nil:
		packet.Clear()
		return err
	}
	packet.SetData(buf[:n])

	packet.StreamIndex = 0
	packet.PTS = d.next
	packet.DTS = d.next
	packet.Key = true
	if d.info.Format.Type == media.MediaTypeAudio {
		samples := int64(n / d.info.Format.Audio.BlockAlign())
		packet.Duration = media.Rescale(samples, media.NewRational(1, d.info.Format.Audio.SampleRate), d.info.Format.TimeBase)
	} else {
		packet.Duration = d.step
	}
	d.next += packet.Duration
	return nil
}

// Seek moves to the packet that contains ts.
func (d *RawDemuxer) Seek(streamIndex int, ts int64) error {
	if streamIndex != 0 {
		return fmt.Errorf("stream %d: %w", streamIndex, ErrInvalidStream)
	}
	if !d.src.CanSeek() {
		return ErrNotSeekable
	}
	if ts < 0 {
		ts = 0
	}

	index := ts / d.step
	if _, err := d.src.Seek(index*int64(d.packetSize), io.SeekStart); err != nil {
		return fmt.Errorf("seeking to packet %d: %w", index, err)
	}
	d.next = index * d.step
	return nil
}

func (d *RawDemuxer) Close() error {
	d.closed = true
	return nil
}

// RawMuxer concatenates packet payloads. It suits a single raw stream; with
// several streams the payloads simply interleave in write order.
type RawMuxer struct {
	dst     IO
	streams []StreamInfo
	header  bool
	trailer bool
	packets int
	bytes   int64
}

func NewRawMuxer(dst IO) (*RawMuxer, error) {
	if !dst.CanWrite() {
		return nil, fmt.Errorf("raw muxer without write: %w", ErrCapability)
	}
	return &RawMuxer{dst: dst}, nil
}

func (m *RawMuxer) AddStream(info StreamInfo) (int, error) {
	if m.header {
		return 0, fmt.Errorf("adding stream after header: %w", ErrInvalidState)
	}
	info.Index = len(m.streams)
	m.streams = append(m.streams, info)
	return info.Index, nil
}

func (m *RawMuxer) Streams() []StreamInfo {
	return append([]StreamInfo(nil), m.streams...)
}

func (m *RawMuxer) WriteHeader() error {
	if m.header {
		return fmt.Errorf("header written twice: %w", ErrInvalidState)
	}
	if len(m.streams) == 0 {
		return ErrNoStreams
	}
	m.header = true
	return nil
}

func (m *RawMuxer) WritePacket(packet *media.Packet) error {
	if !m.header || m.trailer {
		return fmt.Errorf("writing packet outside header and trailer: %w", ErrInvalidState)
	}
	if packet.StreamIndex < 0 || packet.StreamIndex >= len(m.streams) {
		return fmt.Errorf("packet for stream %d: %w", packet.StreamIndex, ErrInvalidStream)
	}

	n, err := m.dst.Write(packet.Data())
	m.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	m.packets++
	return nil
}

func (m *RawMuxer) WriteTrailer() error {
	if !m.header {
		return fmt.Errorf("trailer without header: %w", ErrInvalidState)
	}
	if m.trailer {
		return fmt.Errorf("trailer written twice: %w", ErrInvalidState)
	}
	m.trailer = true

	logging.WithComponent("container").WithFields(logrus.Fields{
		"packets": m.packets,
		"bytes":   m.bytes,
	}).Debug("raw muxer finished")
	return nil
}

func (m *RawMuxer) Packets() int {
	return m.packets
}

func (m *RawMuxer) Bytes() int64 {
	return m.bytes
}
