package transcode

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/harshabose/avpipe/pkg/media"
)

// Config describes the stream a stage works on. It is copied into the stage
// and may only change while the stage is closed.
type Config struct {
	MediaType media.MediaType

	SampleFormat  media.SampleFormat
	SampleRate    int
	ChannelLayout media.ChannelLayout

	Width       int
	Height      int
	PixelFormat media.PixelFormat
	ColorSpace  media.ColorSpace

	BitRate     int64
	TimeBase    media.Rational
	FrameRate   media.Rational
	ThreadCount int

	// FrameSize is the fixed number of samples per channel an audio encoder
	// consumes per input frame. Zero means any size.
	FrameSize int

	// Options are codec private settings, passed to the engine as is.
	Options map[string]string
}

func (c Config) AudioFormat() media.AudioFormat {
	return media.AudioFormat{
		SampleFormat: c.SampleFormat,
		SampleRate:   c.SampleRate,
		Layout:       c.ChannelLayout,
	}
}

func (c Config) VideoFormat() media.VideoFormat {
	return media.VideoFormat{
		Width:       c.Width,
		Height:      c.Height,
		PixelFormat: c.PixelFormat,
		ColorSpace:  c.ColorSpace,
	}
}

func (c Config) Option(key string) (string, bool) {
	v, ok := c.Options[key]
	return v, ok
}

// IntOption returns the integer codec option key, or def when it is unset.
func (c Config) IntOption(key string, def int) (int, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s=%q: %w", key, v, ErrConfiguration)
	}
	return n, nil
}

func (c Config) clone() Config {
	if c.Options != nil {
		opts := make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			opts[k] = v
		}
		c.Options = opts
	}
	return c
}

// validate checks the config against what the codec declares. encoding
// stages always need a complete format; decoders only when the codec
// carries no format of its own.
func (c *Config) validate(desc Descriptor, encoding bool) error {
	if c.MediaType == media.MediaTypeUnknown {
		c.MediaType = desc.MediaType
	}
	if c.MediaType != desc.MediaType {
		return fmt.Errorf("%s is a %s codec, configured for %s: %w", desc.Name, desc.MediaType, c.MediaType, ErrConfiguration)
	}
	if c.FrameSize < 0 || c.ThreadCount < 0 || c.BitRate < 0 {
		return fmt.Errorf("%s: negative frame size, thread count or bit rate: %w", desc.Name, ErrConfiguration)
	}

	if !encoding && !desc.RequiresFormat {
		return nil
	}

	switch c.MediaType {
	case media.MediaTypeAudio:
		if err := c.AudioFormat().Validate(); err != nil {
			return fmt.Errorf("%s: %w: %w", desc.Name, ErrConfiguration, err)
		}
		if len(desc.SampleFormats) > 0 && !slices.Contains(desc.SampleFormats, c.SampleFormat) {
			return fmt.Errorf("%s does not support sample format %s: %w", desc.Name, c.SampleFormat, ErrConfiguration)
		}
		if c.TimeBase.IsZero() {
			c.TimeBase = media.NewRational(1, c.SampleRate)
		}
	case media.MediaTypeVideo:
		if err := c.VideoFormat().Validate(); err != nil {
			return fmt.Errorf("%s: %w: %w", desc.Name, ErrConfiguration, err)
		}
		if len(desc.PixelFormats) > 0 && !slices.Contains(desc.PixelFormats, c.PixelFormat) {
			return fmt.Errorf("%s does not support pixel format %s: %w", desc.Name, c.PixelFormat, ErrConfiguration)
		}
		if c.TimeBase.IsZero() && !c.FrameRate.IsZero() {
			c.TimeBase = c.FrameRate.Invert()
		}
	}
	return nil
}
