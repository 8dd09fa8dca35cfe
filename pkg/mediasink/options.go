package mediasink

import (
	"github.com/pion/webrtc/v4"
)

const (
	H264PayloadType webrtc.PayloadType = 102
	VP8PayloadType  webrtc.PayloadType = 96
	OpusPayloadType webrtc.PayloadType = 111
)

type SinkOption = func(*Sink) error

func setCodec(s *Sink, params webrtc.RTPCodecParameters) error {
	if s.codec != nil {
		return ErrMultipleCodecs
	}
	s.codec = &params
	return nil
}

func WithH264Track(clockrate uint32) SinkOption {
	return func(s *Sink) error {
		return setCodec(s, webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: clockrate},
			PayloadType:        H264PayloadType,
		})
	}
}

func WithVP8Track(clockrate uint32) SinkOption {
	return func(s *Sink) error {
		return setCodec(s, webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: clockrate},
			PayloadType:        VP8PayloadType,
		})
	}
}

func WithOpusTrack(samplerate uint32, channelLayout uint16) SinkOption {
	return func(s *Sink) error {
		return setCodec(s, webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: samplerate, Channels: channelLayout},
			PayloadType:        OpusPayloadType,
		})
	}
}

// WithMaxLate sets how many packets the sample builder holds back waiting for
// reordered packets.
func WithMaxLate(packets uint16) SinkOption {
	return func(s *Sink) error {
		s.maxLate = packets
		return nil
	}
}
