package container

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/media"
)

func monoS16Info() StreamInfo {
	return StreamInfo{
		Format: media.AudioStreamFormat(media.AudioFormat{
			SampleFormat: media.SampleFormatS16,
			SampleRate:   8000,
			Layout:       media.ChannelLayoutMono,
		}, media.Rational{}),
	}
}

func TestRawDemuxerAudio(t *testing.T) {
	// 10 samples and one stray byte
	data := make([]byte, 21)
	for i := range data {
		data[i] = byte(i)
	}

	d, err := NewRawDemuxer(ReaderIO(bytes.NewReader(data)), monoS16Info(), WithPacketSamples(4))
	require.NoError(t, err)

	streams := d.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "pcm_s16le", streams[0].Codec)
	assert.Equal(t, media.NewRational(1, 8000), streams[0].TimeBase())

	packet := media.NewPacket()
	var pts, durations []int64
	var total int
	for {
		err := d.ReadPacket(packet)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.True(t, packet.Key)
		pts = append(pts, packet.PTS)
		durations = append(durations, packet.Duration)
		total += packet.Len()
	}

	assert.Equal(t, []int64{0, 4, 8}, pts)
	assert.Equal(t, []int64{4, 4, 2}, durations)
	assert.Equal(t, 20, total)
}

func TestRawDemuxerVideo(t *testing.T) {
	info := StreamInfo{
		Format: media.VideoStreamFormat(media.VideoFormat{
			Width:       4,
			Height:      2,
			PixelFormat: media.PixelFormatGray8,
		}, media.NewRational(1, 90000)),
		FrameRate: media.NewRational(30, 1),
	}
	// two pictures and a truncated third
	data := make([]byte, 8*2+3)

	d, err := NewRawDemuxer(ReaderIO(bytes.NewReader(data)), info)
	require.NoError(t, err)
	assert.Equal(t, "rawvideo", d.Streams()[0].Codec)

	packet := media.NewPacket()
	require.NoError(t, d.ReadPacket(packet))
	assert.Equal(t, int64(0), packet.PTS)
	assert.Equal(t, int64(3000), packet.Duration)
	assert.Equal(t, 8, packet.Len())

	require.NoError(t, d.ReadPacket(packet))
	assert.Equal(t, int64(3000), packet.PTS)

	assert.Equal(t, io.EOF, d.ReadPacket(packet))
}

func TestRawDemuxerRejects(t *testing.T) {
	_, err := NewRawDemuxer(IO{}, monoS16Info())
	assert.ErrorIs(t, err, ErrCapability)

	planar := monoS16Info()
	planar.Format.Audio.SampleFormat = media.SampleFormatS16P
	_, err = NewRawDemuxer(ReaderIO(bytes.NewReader(nil)), planar)
	assert.ErrorIs(t, err, media.ErrInvalidFormat)

	video := StreamInfo{Format: media.VideoStreamFormat(media.VideoFormat{
		Width:       2,
		Height:      2,
		PixelFormat: media.PixelFormatGray8,
	}, media.Rational{})}
	_, err = NewRawDemuxer(ReaderIO(bytes.NewReader(nil)), video)
	assert.ErrorIs(t, err, media.ErrInvalidFormat)

	_, err = NewRawDemuxer(ReaderIO(bytes.NewReader(nil)), monoS16Info(), WithPacketSamples(0))
	assert.ErrorIs(t, err, media.ErrRange)
}

func TestRawDemuxerSeek(t *testing.T) {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}

	d, err := NewRawDemuxer(ReaderIO(bytes.NewReader(data)), monoS16Info(), WithPacketSamples(4))
	require.NoError(t, err)

	require.NoError(t, d.Seek(0, 9))
	packet := media.NewPacket()
	require.NoError(t, d.ReadPacket(packet))
	assert.Equal(t, int64(8), packet.PTS)
	assert.Equal(t, byte(16), packet.Data()[0])

	assert.ErrorIs(t, d.Seek(1, 0), ErrInvalidStream)

	plain, err := NewRawDemuxer(IO{Read: bytes.NewReader(data).Read}, monoS16Info())
	require.NoError(t, err)
	assert.ErrorIs(t, plain.Seek(0, 0), ErrNotSeekable)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.ReadPacket(packet), ErrInvalidState)
}

func TestRawMuxer(t *testing.T) {
	var out bytes.Buffer
	m, err := NewRawMuxer(WriterIO(&out))
	require.NoError(t, err)

	assert.ErrorIs(t, m.WriteHeader(), ErrNoStreams)
	assert.ErrorIs(t, m.WritePacket(media.NewPacketFromData([]byte{1})), ErrInvalidState)

	index, err := m.AddStream(monoS16Info())
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	require.NoError(t, m.WriteHeader())
	assert.ErrorIs(t, m.WriteHeader(), ErrInvalidState)
	_, err = m.AddStream(monoS16Info())
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, m.WritePacket(media.NewPacketFromData([]byte{1, 2})))
	require.NoError(t, m.WritePacket(media.NewPacketFromData([]byte{3})))

	stray := media.NewPacketFromData([]byte{9})
	stray.StreamIndex = 1
	assert.ErrorIs(t, m.WritePacket(stray), ErrInvalidStream)

	require.NoError(t, m.WriteTrailer())
	assert.ErrorIs(t, m.WriteTrailer(), ErrInvalidState)
	assert.ErrorIs(t, m.WritePacket(media.NewPacketFromData([]byte{4})), ErrInvalidState)

	assert.Equal(t, []byte{1, 2, 3}, out.Bytes())
	assert.Equal(t, 2, m.Packets())
	assert.Equal(t, int64(3), m.Bytes())

	_, err = NewRawMuxer(IO{})
	assert.ErrorIs(t, err, ErrCapability)
}
