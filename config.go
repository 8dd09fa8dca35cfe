package avpipe

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// Config is the JSON form of a pipeline: where packets come from, where they
// go and what happens to each stream in between. Stream keys are input
// stream indices.
type Config struct {
	Name    string                  `json:"name,omitempty"`
	Input   InputConfig             `json:"input"`
	Output  OutputConfig            `json:"output"`
	Streams map[string]StreamConfig `json:"streams"`
}

// InputConfig describes the input. With the raw container it is a headerless
// file of samples or pictures of one stream, described by the fields below.
// The ffmpeg container probes the input itself and only uses Path, Format and
// Options.
type InputConfig struct {
	Path      string            `json:"path"`
	Container string            `json:"container,omitempty"`
	Format    string            `json:"format,omitempty"`
	Options   map[string]string `json:"options,omitempty"`

	Codec string `json:"codec,omitempty"`
	Type  string `json:"type"`

	SampleFormat  string `json:"sample_format,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
	PacketSamples int    `json:"packet_samples,omitempty"`

	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	PixelFormat string `json:"pixel_format,omitempty"`
	FrameRate   string `json:"frame_rate,omitempty"`
	// DisplayRotation in degrees, counterclockwise, applied when a stream
	// asks for auto_rotate.
	DisplayRotation int `json:"display_rotation,omitempty"`
}

type OutputConfig struct {
	Path string `json:"path"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

type optionBuilder struct {
	options []PipelineOption
	err     error
}

func (ob *optionBuilder) add(option PipelineOption, err error) *optionBuilder {
	if ob.err != nil {
		return ob
	}
	if err != nil {
		ob.err = err
		return ob
	}
	if option != nil {
		ob.options = append(ob.options, option)
	}
	return ob
}

func (c *Config) ToOptions() ([]PipelineOption, error) {
	builder := &optionBuilder{}
	builder.add(c.nameOption())

	for key, stream := range c.Streams {
		builder.add(streamOption(key, stream))
	}
	return builder.options, builder.err
}

func (c *Config) nameOption() (PipelineOption, error) {
	if c.Name == "" {
		return nil, nil
	}
	return WithName(c.Name), nil
}

func streamOption(key string, config StreamConfig) (PipelineOption, error) {
	index, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("stream key %q is not an index: %w", key, ErrUnknownStream)
	}
	if config.BitrateControl != nil && config.Encoder == "" {
		return nil, fmt.Errorf("stream %d: bitrate control without encoder: %w", index, transcode.ErrConfiguration)
	}
	return WithStream(index, config), nil
}

// StreamInfo describes the raw input as stream 0.
func (c InputConfig) StreamInfo() (container.StreamInfo, error) {
	info := container.StreamInfo{Codec: c.Codec}

	switch c.Type {
	case "audio":
		sf, err := media.ParseSampleFormat(c.SampleFormat)
		if err != nil {
			return info, err
		}
		layout, err := media.ParseChannelLayout(c.ChannelLayout)
		if err != nil {
			return info, err
		}
		format := media.AudioFormat{SampleFormat: sf, SampleRate: c.SampleRate, Layout: layout}
		if err := format.Validate(); err != nil {
			return info, err
		}
		info.Format = media.AudioStreamFormat(format, media.NewRational(1, c.SampleRate))
	case "video":
		pf, err := media.ParsePixelFormat(c.PixelFormat)
		if err != nil {
			return info, err
		}
		rate, err := media.ParseRational(c.FrameRate)
		if err != nil {
			return info, err
		}
		format := media.VideoFormat{Width: c.Width, Height: c.Height, PixelFormat: pf}
		if err := format.Validate(); err != nil {
			return info, err
		}
		info.Format = media.VideoStreamFormat(format, rate.Invert())
		info.FrameRate = rate
		if c.DisplayRotation != 0 {
			matrix, err := rotationMatrix(c.DisplayRotation)
			if err != nil {
				return info, err
			}
			info.DisplayMatrix = &matrix
		}
	default:
		return info, fmt.Errorf("input type %q: %w", c.Type, media.ErrInvalidFormat)
	}
	return info, nil
}

// rotationMatrix builds the 16.16 display matrix of a quarter turn.
func rotationMatrix(degrees int) ([9]int32, error) {
	const one = 1 << 16
	var cos, sin int32
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		cos = one
	case 90:
		sin = one
	case 180:
		cos = -one
	case 270:
		sin = -one
	default:
		return [9]int32{}, fmt.Errorf("display rotation %d is not a quarter turn: %w", degrees, media.ErrRange)
	}
	return [9]int32{cos, -sin, 0, sin, cos, 0, 0, 0, 1 << 30}, nil
}
