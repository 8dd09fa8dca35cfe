// Package mediasource writes encoded packets to pion WebRTC local tracks.
// Tracks implement container.Muxer with exactly one stream.
package mediasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	ErrNoCapability     = errors.New("mediasource: no track capabilities given")
	ErrMultipleCodecs   = errors.New("mediasource: multiple codecs on a single track")
	ErrUnsupportedCodec = errors.New("mediasource: codec has no rtp mapping")
	ErrTrackExists      = errors.New("mediasource: track already exists")
	ErrTrackNotFound    = errors.New("mediasource: track not found")
)

var nanosecond = media.NewRational(1, int(time.Second))

// track holds what sample and RTP tracks share: the negotiated capability,
// the muxer state of the single stream and the sender once attached.
type track struct {
	label           string
	streamID        string
	codecCapability *webrtc.RTPCodecCapability
	rtpSender       *webrtc.RTPSender
	priority        Priority

	stream  *container.StreamInfo
	header  bool
	trailer bool
	packets int
	lastPTS int64

	ctx context.Context
}

func newTrack(ctx context.Context, label string, options []TrackOption) (*track, error) {
	t := &track{label: label, streamID: "avpipe", lastPTS: media.NoTimestamp, ctx: ctx}
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	if t.codecCapability == nil {
		return nil, ErrNoCapability
	}
	return t, nil
}

func (t *track) log() *logrus.Entry {
	return logging.WithComponent("mediasource").WithFields(logrus.Fields{
		"track": t.label,
		"mime":  t.codecCapability.MimeType,
	})
}

func (t *track) Label() string {
	return t.label
}

func (t *track) GetPriority() Priority {
	return t.priority
}

func (t *track) Capability() webrtc.RTPCodecCapability {
	return *t.codecCapability
}

func (t *track) Packets() int {
	return t.packets
}

func (t *track) AddStream(info container.StreamInfo) (int, error) {
	if t.header {
		return 0, fmt.Errorf("adding stream after header: %w", container.ErrInvalidState)
	}
	if t.stream != nil {
		return 0, fmt.Errorf("track %s takes one stream: %w", t.label, container.ErrInvalidStream)
	}
	if want := mediaTypeOf(t.codecCapability); info.Format.Type != want {
		return 0, fmt.Errorf("%s stream on %s track: %w", info.Format.Type, want, media.ErrFormatMismatch)
	}
	if info.TimeBase().IsZero() {
		return 0, fmt.Errorf("stream without time base: %w", media.ErrInvalidFormat)
	}

	info.Index = 0
	t.stream = &info
	return 0, nil
}

func (t *track) WriteHeader() error {
	if t.header {
		return fmt.Errorf("header written twice: %w", container.ErrInvalidState)
	}
	if t.stream == nil {
		return container.ErrNoStreams
	}
	t.header = true
	return nil
}

func (t *track) WriteTrailer() error {
	if !t.header || t.trailer {
		return fmt.Errorf("trailer: %w", container.ErrInvalidState)
	}
	t.trailer = true
	t.log().WithField("packets", t.packets).Debug("track finished")
	return nil
}

func (t *track) checkPacket(packet *media.Packet) error {
	if !t.header || t.trailer {
		return fmt.Errorf("writing packet outside header and trailer: %w", container.ErrInvalidState)
	}
	if packet.StreamIndex != 0 {
		return fmt.Errorf("packet for stream %d: %w", packet.StreamIndex, container.ErrInvalidStream)
	}
	return nil
}

// duration returns the packet duration in the stream time base, falling back
// to the distance from the previous packet.
func (t *track) duration(packet *media.Packet) int64 {
	d := packet.Duration
	if d <= 0 && packet.HasPTS() && t.lastPTS != media.NoTimestamp {
		d = packet.PTS - t.lastPTS
	}
	if packet.HasPTS() {
		t.lastPTS = packet.PTS
	}
	if d < 0 {
		return 0
	}
	return d
}

func (t *track) attach(pc *webrtc.PeerConnection, local webrtc.TrackLocal) error {
	if t.rtpSender != nil {
		return fmt.Errorf("track %s attached twice: %w", t.label, container.ErrInvalidState)
	}
	sender, err := pc.AddTrack(local)
	if err != nil {
		return err
	}
	t.rtpSender = sender

	go t.rtcpLoop()
	return nil
}

// rtcpLoop drains RTCP so the interceptors attached to the sender run.
func (t *track) rtcpLoop() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		if _, _, err := t.rtpSender.Read(buf); err != nil {
			t.log().WithError(err).Debug("rtcp reader stopped")
			return
		}
	}
}

// Track writes each packet as one sample; pion packetizes it.
type Track struct {
	*track
	consumer *webrtc.TrackLocalStaticSample
}

func NewTrack(ctx context.Context, label string, options ...TrackOption) (*Track, error) {
	t, err := newTrack(ctx, label, options)
	if err != nil {
		return nil, err
	}

	consumer, err := webrtc.NewTrackLocalStaticSample(*t.codecCapability, label, t.streamID)
	if err != nil {
		return nil, err
	}
	return &Track{track: t, consumer: consumer}, nil
}

// AttachTo adds the track to pc.
func (t *Track) AttachTo(pc *webrtc.PeerConnection) error {
	return t.attach(pc, t.consumer)
}

func (t *Track) Local() webrtc.TrackLocal {
	return t.consumer
}

func (t *Track) WritePacket(packet *media.Packet) error {
	if err := t.checkPacket(packet); err != nil {
		return err
	}

	d := media.Rescale(t.duration(packet), t.stream.TimeBase(), nanosecond)
	if err := t.WriteSample(pionmedia.Sample{
		Data:     append([]byte(nil), packet.Data()...),
		Duration: time.Duration(d),
	}); err != nil {
		return fmt.Errorf("writing sample to %s: %w", t.label, err)
	}
	t.packets++
	return nil
}

func (t *Track) WriteSample(sample pionmedia.Sample) error {
	return t.consumer.WriteSample(sample)
}
