package rtcapi

import (
	"fmt"
)

// Config is the JSON form of an API.
type Config struct {
	H264 *VideoConfig `json:"h264,omitempty"`
	VP8  *VideoConfig `json:"vp8,omitempty"`
	Opus *OpusConfig  `json:"opus,omitempty"`

	NACK        *Preset          `json:"nack,omitempty"`
	RTCPReports *Preset          `json:"rtcp_reports,omitempty"`
	TWCC        *Preset          `json:"twcc,omitempty"`
	Bandwidth   *BandwidthConfig `json:"bandwidth,omitempty"`

	SimulcastExtensions bool `json:"simulcast_extensions,omitempty"`
	TWCCHeaderExtension bool `json:"twcc_header_extension,omitempty"`
	Stats               bool `json:"stats,omitempty"`
}

type VideoConfig struct {
	ClockRate uint32 `json:"clock_rate"`
}

type OpusConfig struct {
	SampleRate    uint32 `json:"sample_rate"`
	ChannelLayout uint16 `json:"channel_layout"`
}

type BandwidthConfig struct {
	Initial int64 `json:"initial"`
	Minimum int64 `json:"minimum"`
	Maximum int64 `json:"maximum"`
}

type Preset string

const (
	PresetLowLatency   Preset = "low_latency"
	PresetDefault      Preset = "default"
	PresetHighQuality  Preset = "high_quality"
	PresetLowBandwidth Preset = "low_bandwidth"
)

var (
	nackGeneratorPresets = map[Preset]NACKGeneratorOptions{
		PresetLowLatency:   NACKGeneratorLowLatency,
		PresetDefault:      NACKGeneratorDefault,
		PresetHighQuality:  NACKGeneratorHighQuality,
		PresetLowBandwidth: NACKGeneratorLowBandwidth,
	}

	nackResponderPresets = map[Preset]NACKResponderOptions{
		PresetLowLatency:   NACKResponderLowLatency,
		PresetDefault:      NACKResponderDefault,
		PresetHighQuality:  NACKResponderHighQuality,
		PresetLowBandwidth: NACKResponderLowBandwidth,
	}

	rtcpReportsPresets = map[Preset]RTCPReportInterval{
		PresetLowLatency:   RTCPReportIntervalLowLatency,
		PresetDefault:      RTCPReportIntervalDefault,
		PresetHighQuality:  RTCPReportIntervalHighQuality,
		PresetLowBandwidth: RTCPReportIntervalLowBandwidth,
	}

	twccPresets = map[Preset]TWCCSenderInterval{
		PresetLowLatency:   TWCCIntervalLowLatency,
		PresetDefault:      TWCCIntervalDefault,
		PresetHighQuality:  TWCCIntervalHighQuality,
		PresetLowBandwidth: TWCCIntervalLowBandwidth,
	}
)

// DefaultConfig registers H264, VP8 and stereo Opus with NACK, RTCP reports
// and transport-wide congestion control feedback.
func DefaultConfig() Config {
	preset := PresetDefault
	return Config{
		H264:        &VideoConfig{ClockRate: 90000},
		VP8:         &VideoConfig{ClockRate: 90000},
		Opus:        &OpusConfig{SampleRate: 48000, ChannelLayout: 2},
		NACK:        &preset,
		RTCPReports: &preset,
		TWCC:        &preset,
	}
}

type optionBuilder struct {
	options []Option
	err     error
}

func (ob *optionBuilder) add(option Option, err error) *optionBuilder {
	if err != nil && ob.err == nil {
		ob.err = err
	}
	if option != nil {
		ob.options = append(ob.options, option)
	}
	return ob
}

// ToOptions converts the configuration. Unknown presets are an error.
func (c *Config) ToOptions() ([]Option, error) {
	builder := &optionBuilder{}

	builder.
		add(c.h264Option(), nil).
		add(c.vp8Option(), nil).
		add(c.opusOption(), nil).
		add(c.nackOption()).
		add(c.rtcpReportsOption()).
		add(c.twccOption()).
		add(c.bandwidthOption(), nil).
		add(c.simulcastOption(), nil).
		add(c.twccHeaderOption(), nil).
		add(c.statsOption(), nil)

	return builder.options, builder.err
}

func (c *Config) h264Option() Option {
	if c.H264 == nil {
		return nil
	}
	return WithH264MediaEngine(c.H264.ClockRate)
}

func (c *Config) vp8Option() Option {
	if c.VP8 == nil {
		return nil
	}
	return WithVP8MediaEngine(c.VP8.ClockRate)
}

func (c *Config) opusOption() Option {
	if c.Opus == nil {
		return nil
	}
	return WithOpusMediaEngine(c.Opus.SampleRate, c.Opus.ChannelLayout)
}

func (c *Config) nackOption() (Option, error) {
	if c.NACK == nil {
		return nil, nil
	}
	generator, ok1 := nackGeneratorPresets[*c.NACK]
	responder, ok2 := nackResponderPresets[*c.NACK]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("nack preset %q unknown", *c.NACK)
	}
	return WithNACKInterceptor(generator, responder), nil
}

func (c *Config) rtcpReportsOption() (Option, error) {
	if c.RTCPReports == nil {
		return nil, nil
	}
	interval, ok := rtcpReportsPresets[*c.RTCPReports]
	if !ok {
		return nil, fmt.Errorf("rtcp reports preset %q unknown", *c.RTCPReports)
	}
	return WithRTCPReportsInterceptor(interval), nil
}

func (c *Config) twccOption() (Option, error) {
	if c.TWCC == nil {
		return nil, nil
	}
	interval, ok := twccPresets[*c.TWCC]
	if !ok {
		return nil, fmt.Errorf("twcc preset %q unknown", *c.TWCC)
	}
	return WithTWCCSenderInterceptor(interval), nil
}

func (c *Config) bandwidthOption() Option {
	if c.Bandwidth == nil {
		return nil
	}
	return WithBandwidthControlInterceptor(c.Bandwidth.Initial, c.Bandwidth.Minimum, c.Bandwidth.Maximum)
}

func (c *Config) simulcastOption() Option {
	if !c.SimulcastExtensions {
		return nil
	}
	return WithSimulcastExtensionHeaders()
}

func (c *Config) twccHeaderOption() Option {
	if !c.TWCCHeaderExtension {
		return nil
	}
	return WithTWCCHeaderExtensionSender()
}

func (c *Config) statsOption() Option {
	if !c.Stats {
		return nil
	}
	return WithStatsCollector()
}
