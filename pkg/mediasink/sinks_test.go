package mediasink

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/media"
)

type fakeReader struct {
	packets []*rtp.Packet
}

func (r *fakeReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(r.packets) == 0 {
		return nil, nil, io.EOF
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, nil, nil
}

func opusRTP(n int, firstTS uint32) *fakeReader {
	r := &fakeReader{}
	for i := 0; i < n; i++ {
		r.packets = append(r.packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    uint8(OpusPayloadType),
				SequenceNumber: uint16(100 + i),
				Timestamp:      firstTS + uint32(i*960),
				Marker:         true,
			},
			Payload: []byte{0x78, byte(i)},
		})
	}
	return r
}

func drain(t *testing.T, s *Sink) []*media.Packet {
	t.Helper()
	var out []*media.Packet
	for {
		p := media.NewPacket()
		err := s.ReadPacket(p)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestSinkAssemblesPackets(t *testing.T) {
	sink, err := NewSink(context.Background(), "audio", WithOpusTrack(48000, 2))
	require.NoError(t, err)
	sink.Bind(opusRTP(5, 0), nil)

	packets := drain(t, sink)
	require.GreaterOrEqual(t, len(packets), 3)
	require.LessOrEqual(t, len(packets), 5)
	for i, p := range packets[:3] {
		assert.Equal(t, int64(i*960), p.PTS)
		assert.Equal(t, int64(960), p.Duration)
		assert.Equal(t, []byte{0x78, byte(i)}, p.Data())
	}
	assert.Equal(t, len(packets), sink.Packets())
}

func TestSinkTimestampWrap(t *testing.T) {
	sink, err := NewSink(context.Background(), "audio", WithOpusTrack(48000, 2))
	require.NoError(t, err)
	sink.Bind(opusRTP(5, 0xFFFFFFFF-960), nil)

	packets := drain(t, sink)
	require.GreaterOrEqual(t, len(packets), 3)
	assert.Equal(t, int64(0), packets[0].PTS)
	assert.Equal(t, int64(960), packets[1].PTS)
	assert.Equal(t, int64(1920), packets[2].PTS)
}

func TestSinkStreams(t *testing.T) {
	sink, err := NewSink(context.Background(), "video", WithH264Track(90000))
	require.NoError(t, err)

	streams := sink.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "h264", streams[0].Codec)
	assert.Equal(t, media.MediaTypeVideo, streams[0].Format.Type)
	assert.Equal(t, media.NewRational(1, 90000), streams[0].TimeBase())
	assert.ErrorIs(t, sink.Seek(0, 0), container.ErrNotSeekable)
}

func TestSinkWaitsForTrack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sink, err := NewSink(ctx, "audio", WithOpusTrack(48000, 2))
	require.NoError(t, err)
	assert.ErrorIs(t, sink.ReadPacket(media.NewPacket()), context.DeadlineExceeded)
}

func TestSinkOptions(t *testing.T) {
	_, err := NewSink(context.Background(), "none")
	assert.ErrorIs(t, err, ErrNoCapability)

	_, err = NewSink(context.Background(), "two", WithVP8Track(90000), WithOpusTrack(48000, 2))
	assert.ErrorIs(t, err, ErrMultipleCodecs)
}

func TestSinksRouting(t *testing.T) {
	sinks := NewSinks(context.Background(), nil)
	sink, err := sinks.CreateSink("audio", WithOpusTrack(48000, 2))
	require.NoError(t, err)

	_, err = sinks.CreateSink("audio", WithOpusTrack(48000, 2))
	assert.ErrorIs(t, err, ErrSinkExists)

	assert.ErrorIs(t, sinks.OnTrack("missing", sink.Codec(), opusRTP(1, 0), nil), ErrSinkNotFound)

	other := sink.Codec()
	other.ClockRate = 16000
	assert.ErrorIs(t, sinks.OnTrack("audio", other, opusRTP(1, 0), nil), ErrCodecMismatch)

	remote := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "audio/OPUS", ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10"},
		PayloadType:        OpusPayloadType,
	}
	require.NoError(t, sinks.OnTrack("audio", remote, opusRTP(4, 0), nil))
	assert.NotEmpty(t, drain(t, sink))
}
