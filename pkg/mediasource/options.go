package mediasource

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/harshabose/avpipe/pkg/media"
)

// Priority weighs a track's share of the estimated bandwidth. Level0 tracks
// receive no share.
type Priority uint8

const (
	Level0 Priority = iota
	Level1
	Level2
	Level3
	Level4
	Level5
)

type TrackOption = func(*track) error

func setCapability(t *track, capability webrtc.RTPCodecCapability) error {
	if t.codecCapability != nil {
		return ErrMultipleCodecs
	}
	t.codecCapability = &capability
	return nil
}

func WithH264Track(clockrate uint32) TrackOption {
	return func(t *track) error {
		return setCapability(t, webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   clockrate,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		})
	}
}

func WithVP8Track(clockrate uint32) TrackOption {
	return func(t *track) error {
		return setCapability(t, webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: clockrate,
		})
	}
}

func WithOpusTrack(samplerate uint32, channelLayout uint16) TrackOption {
	return func(t *track) error {
		return setCapability(t, webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   samplerate,
			Channels:    channelLayout,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		})
	}
}

// WithCodec picks the track capability from a codec name as the transcode
// registry spells it.
func WithCodec(name string) TrackOption {
	return func(t *track) error {
		switch name {
		case "h264", "libx264", "h264_nvenc", "h264_vaapi":
			return WithH264Track(90000)(t)
		case "vp8", "libvpx":
			return WithVP8Track(90000)(t)
		case "opus", "libopus":
			return WithOpusTrack(48000, 2)(t)
		default:
			return fmt.Errorf("codec %q: %w", name, ErrUnsupportedCodec)
		}
	}
}

func WithPriority(level Priority) TrackOption {
	return func(t *track) error {
		t.priority = level
		return nil
	}
}

func WithStreamID(id string) TrackOption {
	return func(t *track) error {
		t.streamID = id
		return nil
	}
}

func mediaTypeOf(capability *webrtc.RTPCodecCapability) media.MediaType {
	if capability.MimeType == webrtc.MimeTypeOpus {
		return media.MediaTypeAudio
	}
	return media.MediaTypeVideo
}
