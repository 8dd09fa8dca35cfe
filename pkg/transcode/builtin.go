package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/media"
)

// defaultQueueSize bounds how many outputs a built-in engine holds before
// Send reports ErrAgain.
const defaultQueueSize = 1

// outputQueue is the bounded output buffer shared by the built-in engines.
type outputQueue[O Unit] struct {
	items []O
	limit int
	eos   bool
}

func (q *outputQueue[O]) open(config Config) error {
	limit, err := config.IntOption("queue_size", defaultQueueSize)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("queue_size %d: %w", limit, ErrConfiguration)
	}
	q.limit = limit
	return nil
}

// full reports whether Send has to refuse input.
func (q *outputQueue[O]) full() bool {
	return len(q.items) >= q.limit
}

func (q *outputQueue[O]) push(o O) {
	q.items = append(q.items, o)
}

func (q *outputQueue[O]) pop(out O) error {
	if len(q.items) == 0 {
		if q.eos {
			return ErrEOF
		}
		return ErrAgain
	}
	moveUnit(out, q.items[0])
	var none O
	q.items[0] = none
	q.items = q.items[1:]
	return nil
}

func (q *outputQueue[O]) flush() {
	for _, o := range q.items {
		reset(o)
	}
	q.items = nil
	q.eos = false
}

var pcmCodecs = []struct {
	name   string
	format media.SampleFormat
}{
	{"pcm_u8", media.SampleFormatU8},
	{"pcm_s16le", media.SampleFormatS16},
	{"pcm_s32le", media.SampleFormatS32},
	{"pcm_f32le", media.SampleFormatFLT},
	{"pcm_f64le", media.SampleFormatDBL},
}

var rawVideoFormats = []media.PixelFormat{
	media.PixelFormatGray8,
	media.PixelFormatYUV420P,
	media.PixelFormatYUV422P,
	media.PixelFormatYUV444P,
	media.PixelFormatNV12,
	media.PixelFormatRGB24,
	media.PixelFormatBGR24,
	media.PixelFormatRGBA,
	media.PixelFormatBGRA,
}

func init() {
	for _, c := range pcmCodecs {
		format := c.format
		mustRegister(Descriptor{
			Name:           c.name,
			MediaType:      media.MediaTypeAudio,
			SampleFormats:  []media.SampleFormat{format},
			RequiresFormat: true,
			Capabilities:   CapabilityVariableFrameSize,
		},
			func() DecoderEngine { return &pcmDecoder{} },
			func() EncoderEngine { return &pcmEncoder{} },
		)
	}

	mustRegister(Descriptor{
		Name:           "rawvideo",
		MediaType:      media.MediaTypeVideo,
		PixelFormats:   rawVideoFormats,
		RequiresFormat: true,
	},
		func() DecoderEngine { return &rawVideoDecoder{} },
		func() EncoderEngine { return &rawVideoEncoder{} },
	)

	mustRegisterFallback(Descriptor{
		Name:          "opus",
		MediaType:     media.MediaTypeAudio,
		SampleFormats: []media.SampleFormat{media.SampleFormatS16},
	},
		func() DecoderEngine { return &opusDecoder{} },
		nil,
	)
}
