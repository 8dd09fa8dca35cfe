package transcode

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
)

type UpdateEncoderConfig struct {
	MaxBitrate                 int64   `json:"max_bitrate"`
	MinBitrate                 int64   `json:"min_bitrate"`
	MinBitrateChangePercentage float64 `json:"min_bitrate_change_percentage"`
}

func (c UpdateEncoderConfig) validate() error {
	if c.MinBitrate < 0 || c.MinBitrate > c.MaxBitrate {
		return fmt.Errorf("update encoder config: bitrate bounds [%d, %d]: %w", c.MinBitrate, c.MaxBitrate, ErrConfiguration)
	}
	return nil
}

// EncoderBuilder rebuilds an encoder whenever the target bit rate moves far
// enough. Stages cannot change bit rate while open, so adapting means
// draining the current encoder and opening the next one from Build.
type EncoderBuilder struct {
	name    string
	options []ConfigOption
	config  UpdateEncoderConfig
	bitrate int64
}

func NewEncoderBuilder(name string, config UpdateEncoderConfig, initial int64, options ...ConfigOption) (*EncoderBuilder, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if _, ok := FindEncoder(name); !ok {
		return nil, fmt.Errorf("encoder %q: %w", name, ErrUnknownCodec)
	}

	b := &EncoderBuilder{
		name:    name,
		options: options,
		config:  config,
	}
	b.bitrate = b.cutoff(initial)
	return b, nil
}

// Build creates a closed encoder at the current bit rate.
func (b *EncoderBuilder) Build(extra ...ConfigOption) (*Encoder, error) {
	options := append(append([]ConfigOption{}, b.options...), extra...)
	return NewEncoder(b.name, append(options, WithBitRate(b.bitrate))...)
}

func (b *EncoderBuilder) GetCurrentBitrate() int64 {
	return b.bitrate
}

// AdaptBitrate records a new target bit rate, clamped to the configured
// bounds. It reports whether the change is large enough to rebuild.
func (b *EncoderBuilder) AdaptBitrate(bps int64) bool {
	bps = b.cutoff(bps)

	_, change := calculateBitrateChange(b.bitrate, bps)
	if change < b.config.MinBitrateChangePercentage {
		return false
	}

	logging.WithComponent("encoder").WithFields(logrus.Fields{
		"codec": b.name,
		"from":  b.bitrate,
		"to":    bps,
	}).Info("adapting bitrate")

	b.bitrate = bps
	return true
}

func (b *EncoderBuilder) cutoff(bps int64) int64 {
	if b.config.MaxBitrate > 0 && bps > b.config.MaxBitrate {
		bps = b.config.MaxBitrate
	}
	if bps < b.config.MinBitrate {
		bps = b.config.MinBitrate
	}
	return bps
}

func calculateBitrateChange(currentBps, newBps int64) (absoluteChange int64, percentageChange float64) {
	absoluteChange = newBps - currentBps
	if absoluteChange < 0 {
		absoluteChange = -absoluteChange
	}

	if currentBps > 0 {
		percentageChange = (float64(absoluteChange) / float64(currentBps)) * 100
	} else if absoluteChange > 0 {
		percentageChange = 100
	}

	return absoluteChange, percentageChange
}
