// Package mediasink turns the RTP of remote pion WebRTC tracks back into
// packets. A Sink implements container.Demuxer with one stream.
package mediasink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	ErrNoCapability   = errors.New("mediasink: no sink capabilities given")
	ErrMultipleCodecs = errors.New("mediasink: multiple codecs on a single sink")
	ErrSinkExists     = errors.New("mediasink: sink already exists")
	ErrSinkNotFound   = errors.New("mediasink: no sink for track")
	ErrCodecMismatch  = errors.New("mediasink: remote codec does not match sink")
)

// RTPReader is the part of webrtc.TrackRemote a Sink reads from.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type Sink struct {
	label   string
	codec   *webrtc.RTPCodecParameters
	maxLate uint16

	mux      sync.Mutex
	reader   RTPReader
	receiver *webrtc.RTPReceiver
	ready    chan struct{}

	builder  *samplebuilder.SampleBuilder
	timeBase media.Rational
	started  bool
	lastTS   uint32
	pts      int64
	eof      bool
	closed   bool
	packets  int

	ctx context.Context
}

func NewSink(ctx context.Context, label string, options ...SinkOption) (*Sink, error) {
	s := &Sink{label: label, maxLate: 64, ready: make(chan struct{}), ctx: ctx}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if s.codec == nil {
		return nil, ErrNoCapability
	}

	depacketizer, err := depacketizerFor(s.codec.MimeType)
	if err != nil {
		return nil, err
	}
	s.builder = samplebuilder.New(s.maxLate, depacketizer, s.codec.ClockRate)
	s.timeBase = media.NewRational(1, int(s.codec.ClockRate))
	return s, nil
}

func depacketizerFor(mime string) (rtp.Depacketizer, error) {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeH264):
		return &codecs.H264Packet{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		return &codecs.VP8Packet{}, nil
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		return &codecs.OpusPacket{}, nil
	default:
		return nil, fmt.Errorf("no depacketizer for %s", mime)
	}
}

func (s *Sink) log() *logrus.Entry {
	return logging.WithComponent("mediasink").WithFields(logrus.Fields{
		"sink": s.label,
		"mime": s.codec.MimeType,
	})
}

func (s *Sink) Label() string {
	return s.label
}

func (s *Sink) Codec() webrtc.RTPCodecParameters {
	return *s.codec
}

func (s *Sink) Packets() int {
	return s.packets
}

// Bind sets the reader RTP comes from. Only the first call takes effect.
func (s *Sink) Bind(reader RTPReader, receiver *webrtc.RTPReceiver) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.reader != nil {
		return
	}
	s.reader = reader
	s.receiver = receiver
	close(s.ready)

	if receiver != nil {
		go s.rtcpLoop()
	}
}

func (s *Sink) rtcpLoop() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if _, _, err := s.receiver.Read(buf); err != nil {
			s.log().WithError(err).Debug("rtcp reader stopped")
			return
		}
	}
}

func (s *Sink) Streams() []container.StreamInfo {
	info := container.StreamInfo{Codec: codecName(s.codec.MimeType)}
	if strings.EqualFold(s.codec.MimeType, webrtc.MimeTypeOpus) {
		info.Format = media.AudioStreamFormat(media.AudioFormat{
			SampleFormat: media.SampleFormatS16,
			SampleRate:   int(s.codec.ClockRate),
			Layout:       media.DefaultChannelLayout(max(int(s.codec.Channels), 1)),
		}, s.timeBase)
	} else {
		info.Format = media.VideoStreamFormat(media.VideoFormat{}, s.timeBase)
	}
	return []container.StreamInfo{info}
}

func codecName(mime string) string {
	_, name, _ := strings.Cut(mime, "/")
	return strings.ToLower(name)
}

// ReadPacket blocks until a whole sample is assembled. It returns io.EOF once
// the remote track ends and everything buffered has been returned.
func (s *Sink) ReadPacket(packet *media.Packet) error {
	if s.closed {
		return fmt.Errorf("reading closed sink: %w", container.ErrInvalidState)
	}

	select {
	case <-s.ready:
	case <-s.ctx.Done():
		return s.ctx.Err()
	}

	for {
		if sample := s.builder.Pop(); sample != nil {
			s.fill(packet, sample)
			return nil
		}
		if s.eof {
			return io.EOF
		}

		p, _, err := s.reader.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log().WithError(err).Warn("remote track failed")
			}
			s.eof = true
			s.builder.Flush()
			continue
		}
		s.builder.Push(p)
	}
}

func (s *Sink) fill(packet *media.Packet, sample *pionmedia.Sample) {
	// RTP timestamps wrap at 32 bits; PTS accumulates the signed distance
	if !s.started {
		s.started = true
		s.lastTS = sample.PacketTimestamp
	}
	s.pts += int64(int32(sample.PacketTimestamp - s.lastTS))
	s.lastTS = sample.PacketTimestamp

	packet.Clear()
	packet.SetData(sample.Data)
	packet.PTS = s.pts
	packet.DTS = s.pts
	packet.Duration = media.Rescale(int64(sample.Duration), media.NewRational(1, int(time.Second)), s.timeBase)
	packet.Key = true
	s.packets++
}

func (s *Sink) Seek(int, int64) error {
	return container.ErrNotSeekable
}

func (s *Sink) Close() error {
	s.closed = true
	return nil
}

// Sinks routes remote tracks of a peer connection to sinks by track id.
type Sinks struct {
	sinks map[string]*Sink
	mux   sync.RWMutex
	ctx   context.Context
}

func NewSinks(ctx context.Context, pc *webrtc.PeerConnection) *Sinks {
	s := &Sinks{
		sinks: make(map[string]*Sink),
		ctx:   ctx,
	}
	if pc != nil {
		pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			if err := s.OnTrack(remote.ID(), remote.Codec(), remote, receiver); err != nil {
				logging.WithComponent("mediasink").WithError(err).WithField("track", remote.ID()).Warn("ignoring remote track")
			}
		})
	}
	return s
}

// OnTrack binds a remote track to the sink registered under id.
func (s *Sinks) OnTrack(id string, codec webrtc.RTPCodecParameters, reader RTPReader, receiver *webrtc.RTPReceiver) error {
	sink, err := s.GetSink(id)
	if err != nil {
		return err
	}
	if !CompareRTPCodecParameters(codec, *sink.codec) {
		return fmt.Errorf("%s: %w", id, ErrCodecMismatch)
	}
	sink.Bind(reader, receiver)
	return nil
}

func (s *Sinks) CreateSink(label string, options ...SinkOption) (*Sink, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if _, exists := s.sinks[label]; exists {
		return nil, fmt.Errorf("%s: %w", label, ErrSinkExists)
	}

	sink, err := NewSink(s.ctx, label, options...)
	if err != nil {
		return nil, err
	}
	s.sinks[label] = sink
	return sink, nil
}

func (s *Sinks) GetSink(label string) (*Sink, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	sink, exists := s.sinks[label]
	if !exists {
		return nil, fmt.Errorf("%s: %w", label, ErrSinkNotFound)
	}
	return sink, nil
}

func (s *Sinks) Sinks() iter.Seq2[string, *Sink] {
	return func(yield func(string, *Sink) bool) {
		s.mux.RLock()
		defer s.mux.RUnlock()

		for id, sink := range s.sinks {
			if !yield(id, sink) {
				return
			}
		}
	}
}

// CompareRTPCodecParameters reports whether a remote codec matches a sink.
// Payload type, mime type, clock rate and channels must agree; fmtp lines and
// feedback only get logged.
func CompareRTPCodecParameters(a, b webrtc.RTPCodecParameters) bool {
	log := logging.WithComponent("mediasink")
	identical := true

	if a.PayloadType != b.PayloadType {
		log.Debugf("payload type differs: %v != %v", a.PayloadType, b.PayloadType)
		identical = false
	}
	if !strings.EqualFold(a.MimeType, b.MimeType) {
		log.Debugf("mime type differs: %s != %s", a.MimeType, b.MimeType)
		identical = false
	}
	if a.ClockRate != b.ClockRate {
		log.Debugf("clock rate differs: %d != %d", a.ClockRate, b.ClockRate)
		identical = false
	}
	if a.Channels != b.Channels {
		log.Debugf("channels differ: %d != %d", a.Channels, b.Channels)
		identical = false
	}
	if a.SDPFmtpLine != b.SDPFmtpLine {
		log.Debugf("fmtp differs (ignored): %s != %s", a.SDPFmtpLine, b.SDPFmtpLine)
	}
	return identical
}
