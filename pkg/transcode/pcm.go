package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/media"
)

// pcmDecoder turns interleaved PCM packets into audio frames.
type pcmDecoder struct {
	format   media.AudioFormat
	timeBase media.Rational
	queue    outputQueue[*media.Frame]
}

func (d *pcmDecoder) Open(config Config, _ *hwcontext.Device) error {
	d.format = config.AudioFormat()
	d.timeBase = config.TimeBase
	return d.queue.open(config)
}

func (d *pcmDecoder) Send(packet *media.Packet) error {
	if packet == nil {
		d.queue.eos = true
		return nil
	}
	if d.queue.full() {
		return ErrAgain
	}

	align := d.format.BlockAlign()
	if packet.Len()%align != 0 {
		return fmt.Errorf("%d byte packet is not a multiple of %d byte samples: %w", packet.Len(), align, ErrInvalidData)
	}

	frame, err := media.AllocAudioFrame(d.format, packet.Len()/align)
	if err != nil {
		return err
	}
	copy(frame.Plane(0), packet.Data())

	frame.PTS = packet.PTS
	frame.TimeBase = d.timeBase
	frame.Duration = packet.Duration
	if frame.Duration == 0 {
		frame.Duration = media.Rescale(int64(frame.Count()), media.NewRational(1, d.format.SampleRate), d.timeBase)
	}
	frame.KeyFrame = true

	d.queue.push(frame)
	return nil
}

func (d *pcmDecoder) Receive(frame *media.Frame) error {
	return d.queue.pop(frame)
}

func (d *pcmDecoder) Flush() {
	d.queue.flush()
}

func (d *pcmDecoder) Close() error {
	d.queue.flush()
	return nil
}

// pcmEncoder serialises audio frames into interleaved PCM packets. With the
// frame_size option set it behaves like a block codec: every frame but the
// last must carry exactly that many samples.
type pcmEncoder struct {
	format    media.AudioFormat
	timeBase  media.Rational
	frameSize int
	short     bool
	queue     outputQueue[*media.Packet]
}

func (e *pcmEncoder) Open(config Config, _ *hwcontext.Device) error {
	e.format = config.AudioFormat()
	e.timeBase = config.TimeBase

	size, err := config.IntOption("frame_size", config.FrameSize)
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("frame_size %d: %w", size, ErrConfiguration)
	}
	e.frameSize = size
	return e.queue.open(config)
}

func (e *pcmEncoder) FrameSize() int {
	return e.frameSize
}

func (e *pcmEncoder) Send(frame *media.Frame) error {
	if frame == nil {
		e.queue.eos = true
		return nil
	}
	if e.queue.full() {
		return ErrAgain
	}

	if frame.MediaType() != media.MediaTypeAudio {
		return fmt.Errorf("pcm encoder got %s frame: %w", frame.MediaType(), media.ErrFormatMismatch)
	}
	a := frame.Audio()
	if a.SampleFormat != e.format.SampleFormat || a.Channels() != e.format.Channels() || a.SampleRate != e.format.SampleRate {
		return fmt.Errorf("pcm encoder configured for %s, got %s: %w", e.format, a, media.ErrFormatMismatch)
	}

	if e.frameSize > 0 {
		if e.short || frame.Count() > e.frameSize {
			return fmt.Errorf("frame of %d samples for frame size %d: %w", frame.Count(), e.frameSize, ErrInvalidData)
		}
		e.short = frame.Count() < e.frameSize
	}

	packet := media.NewPacket()
	packet.CopyData(frame.Samples(0))
	packet.PTS = media.Rescale(frame.PTS, frame.TimeBase, e.timeBase)
	packet.DTS = packet.PTS
	packet.Duration = media.Rescale(int64(frame.Count()), media.NewRational(1, e.format.SampleRate), e.timeBase)
	packet.Key = true

	e.queue.push(packet)
	return nil
}

func (e *pcmEncoder) Receive(packet *media.Packet) error {
	return e.queue.pop(packet)
}

func (e *pcmEncoder) Flush() {
	e.queue.flush()
	e.short = false
}

func (e *pcmEncoder) Close() error {
	e.queue.flush()
	return nil
}
