package mediasource

import (
	"context"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/harshabose/avpipe/pkg/media"
)

const defaultMTU = 1200

type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
}

// RTPTrack packetizes packets itself and writes the RTP packets.
type RTPTrack struct {
	*track
	local      *webrtc.TrackLocalStaticRTP
	consumer   rtpWriter
	packetizer rtp.Packetizer
	clockRate  media.Rational
}

func NewRTPTrack(ctx context.Context, label string, options ...TrackOption) (*RTPTrack, error) {
	t, err := newTrack(ctx, label, options)
	if err != nil {
		return nil, err
	}

	payloader, err := payloaderFor(t.codecCapability.MimeType)
	if err != nil {
		return nil, err
	}

	local, err := webrtc.NewTrackLocalStaticRTP(*t.codecCapability, label, t.streamID)
	if err != nil {
		return nil, err
	}

	// payload type and ssrc are rewritten per binding by the static track
	packetizer := rtp.NewPacketizer(defaultMTU, 0, 0, payloader, rtp.NewRandomSequencer(), t.codecCapability.ClockRate)

	return &RTPTrack{
		track:      t,
		local:      local,
		consumer:   local,
		packetizer: packetizer,
		clockRate:  media.NewRational(1, int(t.codecCapability.ClockRate)),
	}, nil
}

func payloaderFor(mime string) (rtp.Payloader, error) {
	switch mime {
	case webrtc.MimeTypeH264:
		return &codecs.H264Payloader{}, nil
	case webrtc.MimeTypeVP8:
		return &codecs.VP8Payloader{EnablePictureID: true}, nil
	case webrtc.MimeTypeOpus:
		return &codecs.OpusPayloader{}, nil
	default:
		return nil, fmt.Errorf("%s: %w", mime, ErrUnsupportedCodec)
	}
}

func (t *RTPTrack) AttachTo(pc *webrtc.PeerConnection) error {
	return t.attach(pc, t.local)
}

func (t *RTPTrack) Local() webrtc.TrackLocal {
	return t.local
}

func (t *RTPTrack) WritePacket(packet *media.Packet) error {
	if err := t.checkPacket(packet); err != nil {
		return err
	}

	samples := media.Rescale(t.duration(packet), t.stream.TimeBase(), t.clockRate)
	for _, p := range t.packetizer.Packetize(packet.Data(), uint32(samples)) {
		if err := t.WriteRTP(p); err != nil {
			return err
		}
	}
	t.packets++
	return nil
}

func (t *RTPTrack) WriteRTP(packet *rtp.Packet) error {
	if packet == nil {
		return nil
	}
	if err := t.consumer.WriteRTP(packet); err != nil {
		return fmt.Errorf("writing rtp to %s: %w", t.label, err)
	}
	return nil
}
