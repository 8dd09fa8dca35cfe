package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/media"
)

type ConfigOption = func(*Config) error

// WithConfig replaces the whole configuration.
func WithConfig(config Config) ConfigOption {
	return func(c *Config) error {
		*c = config.clone()
		return nil
	}
}

// WithFormat copies the stream format a frame source reports, typically a
// filter graph sink feeding an encoder.
func WithFormat(format media.Format) ConfigOption {
	return func(c *Config) error {
		c.MediaType = format.Type
		c.TimeBase = format.TimeBase
		switch format.Type {
		case media.MediaTypeAudio:
			return WithAudioFormat(format.Audio)(c)
		case media.MediaTypeVideo:
			return WithVideoFormat(format.Video)(c)
		default:
			return fmt.Errorf("stream format of type %s: %w", format.Type, ErrConfiguration)
		}
	}
}

func WithAudioFormat(format media.AudioFormat) ConfigOption {
	return func(c *Config) error {
		c.MediaType = media.MediaTypeAudio
		c.SampleFormat = format.SampleFormat
		c.SampleRate = format.SampleRate
		c.ChannelLayout = format.Layout
		return nil
	}
}

func WithVideoFormat(format media.VideoFormat) ConfigOption {
	return func(c *Config) error {
		c.MediaType = media.MediaTypeVideo
		c.Width = format.Width
		c.Height = format.Height
		c.PixelFormat = format.PixelFormat
		c.ColorSpace = format.ColorSpace
		return nil
	}
}

func WithTimeBase(tb media.Rational) ConfigOption {
	return func(c *Config) error {
		c.TimeBase = tb
		return nil
	}
}

func WithFrameRate(rate media.Rational) ConfigOption {
	return func(c *Config) error {
		c.FrameRate = rate
		return nil
	}
}

func WithBitRate(bps int64) ConfigOption {
	return func(c *Config) error {
		if bps < 0 {
			return fmt.Errorf("bit rate %d: %w", bps, ErrConfiguration)
		}
		c.BitRate = bps
		return nil
	}
}

func WithThreadCount(n int) ConfigOption {
	return func(c *Config) error {
		c.ThreadCount = n
		return nil
	}
}

func WithFrameSize(samples int) ConfigOption {
	return func(c *Config) error {
		c.FrameSize = samples
		return nil
	}
}

// WithCodecOption sets one codec private option. An empty value removes it.
func WithCodecOption(key, value string) ConfigOption {
	return func(c *Config) error {
		if value == "" {
			delete(c.Options, key)
			return nil
		}
		if c.Options == nil {
			c.Options = make(map[string]string)
		}
		c.Options[key] = value
		return nil
	}
}

func WithCodecOptions(options map[string]string) ConfigOption {
	return func(c *Config) error {
		for k, v := range options {
			if err := WithCodecOption(k, v)(c); err != nil {
				return err
			}
		}
		return nil
	}
}
