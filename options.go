package avpipe

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/transcode"
)

type PipelineOption = func(*Pipeline) error

// StreamConfig says what happens to one input stream. Without an encoder the
// stream's packets are copied to the output untouched.
type StreamConfig struct {
	Decoder        string            `json:"decoder,omitempty"`
	DecoderOptions map[string]string `json:"decoder_options,omitempty"`

	Filter        string `json:"filter,omitempty"`
	FilterThreads int    `json:"filter_threads,omitempty"`
	AutoRotate    bool   `json:"auto_rotate,omitempty"`

	Encoder        string            `json:"encoder,omitempty"`
	EncoderOptions map[string]string `json:"encoder_options,omitempty"`
	BitRate        int64             `json:"bit_rate,omitempty"`
	FrameSize      int               `json:"frame_size,omitempty"`
	Threads        int               `json:"threads,omitempty"`

	// BitrateControl enables AdaptBitrate for the stream.
	BitrateControl *transcode.UpdateEncoderConfig `json:"bitrate_control,omitempty"`

	// UseFifo forces the sample queue on or off. Unset, it is used whenever
	// the encoder wants fixed size audio frames.
	UseFifo *bool `json:"use_fifo,omitempty"`
}

// WithStream processes input stream index as config says. Streams without a
// config are dropped.
func WithStream(index int, config StreamConfig) PipelineOption {
	return func(p *Pipeline) error {
		if index < 0 {
			return fmt.Errorf("stream index %d: %w", index, ErrUnknownStream)
		}
		if _, exists := p.configs[index]; exists {
			return fmt.Errorf("stream %d configured twice: %w", index, ErrInvalidState)
		}
		if config.FrameSize < 0 || config.Threads < 0 || config.FilterThreads < 0 {
			return fmt.Errorf("stream %d: negative frame size or thread count: %w", index, transcode.ErrConfiguration)
		}
		p.configs[index] = config
		return nil
	}
}

// WithHardwareDevice lends dev to every decoder and encoder of the pipeline.
// The pipeline borrows its own reference.
func WithHardwareDevice(dev *hwcontext.Device) PipelineOption {
	return func(p *Pipeline) error {
		borrowed, err := dev.Borrow()
		if err != nil {
			return err
		}
		p.device = borrowed
		return nil
	}
}

func WithName(name string) PipelineOption {
	return func(p *Pipeline) error {
		p.name = name
		return nil
	}
}
