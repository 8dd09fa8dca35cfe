package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/media"
)

// rawVideoDecoder unpacks tightly packed pictures, one per packet.
type rawVideoDecoder struct {
	format   media.VideoFormat
	timeBase media.Rational
	queue    outputQueue[*media.Frame]
}

func (d *rawVideoDecoder) Open(config Config, _ *hwcontext.Device) error {
	d.format = config.VideoFormat()
	d.timeBase = config.TimeBase
	return d.queue.open(config)
}

func (d *rawVideoDecoder) Send(packet *media.Packet) error {
	if packet == nil {
		d.queue.eos = true
		return nil
	}
	if d.queue.full() {
		return ErrAgain
	}
	if packet.Len() != d.format.ImageSize() {
		return fmt.Errorf("%d byte packet for a %d byte %s picture: %w", packet.Len(), d.format.ImageSize(), d.format, ErrInvalidData)
	}

	frame, err := media.AllocVideoFrame(d.format)
	if err != nil {
		return err
	}
	if err := frame.FillVideo(packet.Data()); err != nil {
		return err
	}
	frame.PTS = packet.PTS
	frame.Duration = packet.Duration
	frame.TimeBase = d.timeBase
	frame.KeyFrame = true

	d.queue.push(frame)
	return nil
}

func (d *rawVideoDecoder) Receive(frame *media.Frame) error {
	return d.queue.pop(frame)
}

func (d *rawVideoDecoder) Flush() {
	d.queue.flush()
}

func (d *rawVideoDecoder) Close() error {
	d.queue.flush()
	return nil
}

// rawVideoEncoder packs pictures into packets without compression.
type rawVideoEncoder struct {
	format   media.VideoFormat
	timeBase media.Rational
	queue    outputQueue[*media.Packet]
}

func (e *rawVideoEncoder) Open(config Config, _ *hwcontext.Device) error {
	e.format = config.VideoFormat()
	e.timeBase = config.TimeBase
	return e.queue.open(config)
}

func (e *rawVideoEncoder) Send(frame *media.Frame) error {
	if frame == nil {
		e.queue.eos = true
		return nil
	}
	if e.queue.full() {
		return ErrAgain
	}
	if frame.Hardware() {
		return fmt.Errorf("rawvideo cannot read hardware frames: %w", media.ErrFormatMismatch)
	}

	v := frame.Video()
	if frame.MediaType() != media.MediaTypeVideo || v.Width != e.format.Width || v.Height != e.format.Height || v.PixelFormat != e.format.PixelFormat {
		return fmt.Errorf("rawvideo configured for %s, got %s: %w", e.format, v, media.ErrFormatMismatch)
	}

	packet := media.NewPacketFromData(frame.VideoBytes())
	packet.PTS = media.Rescale(frame.PTS, frame.TimeBase, e.timeBase)
	packet.DTS = packet.PTS
	packet.Duration = media.Rescale(frame.Duration, frame.TimeBase, e.timeBase)
	packet.Key = true

	e.queue.push(packet)
	return nil
}

func (e *rawVideoEncoder) Receive(packet *media.Packet) error {
	return e.queue.pop(packet)
}

func (e *rawVideoEncoder) Flush() {
	e.queue.flush()
}

func (e *rawVideoEncoder) Close() error {
	e.queue.flush()
	return nil
}
