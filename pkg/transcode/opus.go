package transcode

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

// opusMaxSamples is 120 ms at 48 kHz, the longest an opus packet can last.
const opusMaxSamples = 5760

// opusSilkSamples is what pion/opus writes per packet: one 20 ms SILK frame
// upsampled to 48 kHz.
const opusSilkSamples = 960

// opusDecoder decodes opus packets with the pure Go pion/opus decoder, which
// handles mono single frame SILK packets only. Output is s16 at 48 kHz
// whatever the packet bandwidth.
type opusDecoder struct {
	decoder  opus.Decoder
	timeBase media.Rational
	scratch  []byte
	queue    outputQueue[*media.Frame]
}

func (d *opusDecoder) Open(config Config, _ *hwcontext.Device) error {
	d.decoder = opus.NewDecoder()
	d.timeBase = config.TimeBase
	if d.timeBase.IsZero() {
		d.timeBase = media.NewRational(1, 48000)
	}
	d.scratch = make([]byte, opusMaxSamples*2*2)
	return d.queue.open(config)
}

func (d *opusDecoder) Send(packet *media.Packet) error {
	if packet == nil {
		d.queue.eos = true
		return nil
	}
	if d.queue.full() {
		return ErrAgain
	}

	samples48k, err := opusPacketSamples(packet.Data())
	if err != nil {
		return err
	}

	bandwidth, isStereo, err := d.decoder.Decode(packet.Data(), d.scratch)
	if err != nil {
		return fmt.Errorf("opus decode: %w: %w", ErrInvalidData, err)
	}

	channels := 1
	if isStereo {
		channels = 2
	}
	count := min(samples48k, opusSilkSamples)

	format := media.AudioFormat{
		SampleFormat: media.SampleFormatS16,
		SampleRate:   48000,
		Layout:       media.DefaultChannelLayout(channels),
	}
	frame, err := media.AllocAudioFrame(format, count)
	if err != nil {
		return err
	}
	copy(frame.Plane(0), d.scratch[:count*2*channels])

	frame.PTS = packet.PTS
	frame.TimeBase = d.timeBase
	frame.Duration = media.Rescale(int64(count), media.NewRational(1, 48000), d.timeBase)
	frame.KeyFrame = true

	logging.WithComponent("opus").WithFields(logrus.Fields{
		"bandwidth": bandwidth.String(),
		"stereo":    isStereo,
		"samples":   count,
	}).Trace("decoded packet")

	d.queue.push(frame)
	return nil
}

func (d *opusDecoder) Receive(frame *media.Frame) error {
	return d.queue.pop(frame)
}

func (d *opusDecoder) Flush() {
	d.queue.flush()
	d.decoder = opus.NewDecoder()
}

func (d *opusDecoder) Close() error {
	d.queue.flush()
	return nil
}

// opusPacketSamples returns the number of 48 kHz samples per channel an opus
// packet decodes to, read from its TOC byte (RFC 6716 section 3.1).
func opusPacketSamples(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty opus packet: %w", ErrInvalidData)
	}

	config := int(data[0] >> 3)
	var perFrame int
	switch {
	case config < 12: // SILK
		perFrame = []int{480, 960, 1920, 2880}[config%4]
	case config < 16: // hybrid
		perFrame = []int{480, 960}[config%2]
	default: // CELT
		perFrame = []int{120, 240, 480, 960}[config%4]
	}

	var frames int
	switch data[0] & 0x3 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(data) < 2 {
			return 0, fmt.Errorf("opus packet without frame count: %w", ErrInvalidData)
		}
		frames = int(data[1] & 0x3f)
	}

	total := perFrame * frames
	if frames == 0 || total > opusMaxSamples {
		return 0, fmt.Errorf("opus packet of %d frames of %d samples: %w", frames, perFrame, ErrInvalidData)
	}
	return total, nil
}
