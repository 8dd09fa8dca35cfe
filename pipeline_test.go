package avpipe

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/container"
	"github.com/harshabose/avpipe/pkg/hwcontext"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

var monoS16 = media.AudioFormat{
	SampleFormat: media.SampleFormatS16,
	SampleRate:   8000,
	Layout:       media.ChannelLayoutMono,
}

func pcmBytes(samples ...int16) []byte {
	data := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return data
}

func ramp(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	return samples
}

func pcmDemuxer(t *testing.T, data []byte) *container.RawDemuxer {
	t.Helper()
	info := container.StreamInfo{Format: media.AudioStreamFormat(monoS16, media.Rational{})}
	d, err := container.NewRawDemuxer(container.ReaderIO(bytes.NewReader(data)), info, container.WithPacketSamples(4))
	require.NoError(t, err)
	return d
}

type output struct {
	bytes.Buffer
	muxer *container.RawMuxer
}

func newOutput(t *testing.T) *output {
	t.Helper()
	o := &output{}
	m, err := container.NewRawMuxer(container.WriterIO(&o.Buffer))
	require.NoError(t, err)
	o.muxer = m
	return o
}

func newPipeline(t *testing.T, demuxer container.Demuxer, muxer container.Muxer, options ...PipelineOption) *Pipeline {
	t.Helper()
	p, err := NewPipeline(demuxer, muxer, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestIdentityPipeline(t *testing.T) {
	input := pcmBytes(ramp(12)...)
	out := newOutput(t)

	p := newPipeline(t, pcmDemuxer(t, input), out.muxer, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, 3, out.muxer.Packets())

	stats := p.Stats()[0]
	assert.NoError(t, stats.Err)
	assert.Equal(t, StreamStats{PacketsIn: 3, FramesDecoded: 3, FramesFiltered: 3, PacketsOut: 3}, stats)

	streams := out.muxer.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "pcm_s16le", streams[0].Codec)
	assert.Equal(t, media.NewRational(1, 8000), streams[0].TimeBase())
}

func TestPipelineFeedsFixedFrameSizeEncoder(t *testing.T) {
	input := pcmBytes(ramp(12)...)
	out := newOutput(t)

	p := newPipeline(t, pcmDemuxer(t, input), out.muxer, WithStream(0, StreamConfig{
		Encoder:   "pcm_s16le",
		FrameSize: 5,
	}))
	require.NoError(t, p.Run(context.Background()))

	// 5 + 5 samples, then the short remainder at end of stream
	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, 3, p.Stats()[0].PacketsOut)
}

func TestPipelineWithoutQueueFailsFixedFrameSizeEncoder(t *testing.T) {
	useFifo := false
	out := newOutput(t)

	p := newPipeline(t, pcmDemuxer(t, pcmBytes(ramp(12)...)), out.muxer, WithStream(0, StreamConfig{
		Encoder:   "pcm_s16le",
		FrameSize: 5,
		UseFifo:   &useFifo,
	}))

	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrAllFailed)
	assert.ErrorIs(t, p.Stats()[0].Err, transcode.ErrInvalidData)
}

func TestPipelineFiltersVideo(t *testing.T) {
	format := media.VideoFormat{Width: 2, Height: 2, PixelFormat: media.PixelFormatGray8}
	rate := media.NewRational(25, 1)

	for _, tc := range []struct {
		name   string
		config StreamConfig
		matrix *[9]int32
		want   []byte
	}{
		{
			name:   "vflip",
			config: StreamConfig{Encoder: "rawvideo", Filter: "vflip"},
			want:   []byte{3, 4, 1, 2, 7, 8, 5, 6},
		},
		{
			name:   "auto rotate half turn",
			config: StreamConfig{Encoder: "rawvideo", AutoRotate: true},
			matrix: &[9]int32{-1 << 16, 0, 0, 0, -1 << 16, 0, 0, 0, 1 << 30},
			want:   []byte{4, 3, 2, 1, 8, 7, 6, 5},
		},
		{
			name:   "rotation ignored without auto rotate",
			config: StreamConfig{Encoder: "rawvideo"},
			matrix: &[9]int32{-1 << 16, 0, 0, 0, -1 << 16, 0, 0, 0, 1 << 30},
			want:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			info := container.StreamInfo{
				Format:        media.VideoStreamFormat(format, media.Rational{}),
				FrameRate:     rate,
				DisplayMatrix: tc.matrix,
			}
			d, err := container.NewRawDemuxer(container.ReaderIO(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})), info)
			require.NoError(t, err)
			out := newOutput(t)

			p := newPipeline(t, d, out.muxer, WithStream(0, tc.config))
			require.NoError(t, p.Run(context.Background()))

			assert.Equal(t, tc.want, out.Bytes())
			assert.Equal(t, 2, p.Stats()[0].PacketsOut)
		})
	}
}

// scriptedDemuxer replays packets for a fixed set of streams.
type scriptedDemuxer struct {
	streams []container.StreamInfo
	packets []*media.Packet
	next    int
	closed  bool
}

func (d *scriptedDemuxer) Streams() []container.StreamInfo {
	return d.streams
}

func (d *scriptedDemuxer) ReadPacket(packet *media.Packet) error {
	if d.next == len(d.packets) {
		return io.EOF
	}
	src := d.packets[d.next]
	d.next++
	packet.CopyData(src.Data())
	packet.CopyProps(src)
	return nil
}

func (d *scriptedDemuxer) Seek(int, int64) error {
	return container.ErrNotSeekable
}

func (d *scriptedDemuxer) Close() error {
	d.closed = true
	return nil
}

// recordingMuxer keeps every packet per output stream.
type recordingMuxer struct {
	streams []container.StreamInfo
	packets map[int][][]byte
	header  bool
	trailer bool
	fail    error
}

func (m *recordingMuxer) AddStream(info container.StreamInfo) (int, error) {
	info.Index = len(m.streams)
	m.streams = append(m.streams, info)
	return info.Index, nil
}

func (m *recordingMuxer) WriteHeader() error {
	m.header = true
	m.packets = make(map[int][][]byte)
	return nil
}

func (m *recordingMuxer) WritePacket(packet *media.Packet) error {
	if m.fail != nil {
		return m.fail
	}
	m.packets[packet.StreamIndex] = append(m.packets[packet.StreamIndex], append([]byte(nil), packet.Data()...))
	return nil
}

func (m *recordingMuxer) WriteTrailer() error {
	m.trailer = true
	return nil
}

func pcmInfo(index int) container.StreamInfo {
	return container.StreamInfo{
		Index:  index,
		Codec:  "pcm_s16le",
		Format: media.AudioStreamFormat(monoS16, media.NewRational(1, 8000)),
	}
}

func packetFor(stream int, pts int64, data []byte) *media.Packet {
	p := media.NewPacketFromData(data)
	p.StreamIndex = stream
	p.PTS = pts
	p.DTS = pts
	return p
}

func TestFailingStreamLeavesSiblingsRunning(t *testing.T) {
	d := &scriptedDemuxer{
		streams: []container.StreamInfo{pcmInfo(0), pcmInfo(1)},
		packets: []*media.Packet{
			packetFor(0, 0, pcmBytes(1, 2)),
			packetFor(1, 0, []byte{1, 2, 3}), // not a whole sample
			packetFor(0, 2, pcmBytes(3, 4)),
			packetFor(1, 2, pcmBytes(5, 6)),
		},
	}
	m := &recordingMuxer{}

	p := newPipeline(t, d, m,
		WithStream(0, StreamConfig{Encoder: "pcm_s16le"}),
		WithStream(1, StreamConfig{Encoder: "pcm_s16le"}),
	)
	require.NoError(t, p.Run(context.Background()))

	assert.True(t, m.trailer)
	assert.Equal(t, [][]byte{pcmBytes(1, 2), pcmBytes(3, 4)}, m.packets[0])
	assert.Empty(t, m.packets[1])

	stats := p.Stats()
	assert.NoError(t, stats[0].Err)
	assert.ErrorIs(t, stats[1].Err, transcode.ErrInvalidData)
	assert.Equal(t, 1, stats[1].PacketsIn)
	assert.Equal(t, 1, p.Dropped())
}

func TestStreamCopyAndDroppedStreams(t *testing.T) {
	copied := container.StreamInfo{Index: 1, Codec: "h264", Format: media.Format{Type: media.MediaTypeVideo, TimeBase: media.NewRational(1, 90000)}}
	d := &scriptedDemuxer{
		streams: []container.StreamInfo{pcmInfo(0), copied, pcmInfo(2)},
		packets: []*media.Packet{
			packetFor(1, 0, []byte{0, 0, 0, 1, 0x65}),
			packetFor(2, 0, pcmBytes(9)),
			packetFor(0, 0, pcmBytes(1)),
			packetFor(1, 3000, []byte{0, 0, 0, 1, 0x41}),
		},
	}
	m := &recordingMuxer{}

	p := newPipeline(t, d, m,
		WithStream(0, StreamConfig{Encoder: "pcm_s16le"}),
		WithStream(1, StreamConfig{}),
	)
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, m.streams, 2)
	assert.Equal(t, "pcm_s16le", m.streams[0].Codec)
	assert.Equal(t, "h264", m.streams[1].Codec)

	assert.Equal(t, [][]byte{{0, 0, 0, 1, 0x65}, {0, 0, 0, 1, 0x41}}, m.packets[1])
	assert.Equal(t, [][]byte{pcmBytes(1)}, m.packets[0])
	assert.Equal(t, 1, p.Dropped())
	assert.Equal(t, 2, p.Stats()[1].PacketsOut)
}

func TestEmptyPacketsAreDropped(t *testing.T) {
	d := &scriptedDemuxer{
		streams: []container.StreamInfo{pcmInfo(0)},
		packets: []*media.Packet{
			packetFor(0, 0, pcmBytes(1, 2, 3, 4)),
			packetFor(0, 4, nil),
			packetFor(0, 4, pcmBytes(5, 6, 7, 8)),
		},
	}
	m := &recordingMuxer{}

	p := newPipeline(t, d, m, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, [][]byte{pcmBytes(1, 2, 3, 4), pcmBytes(5, 6, 7, 8)}, m.packets[0])
	stats := p.Stats()[0]
	assert.NoError(t, stats.Err)
	assert.Equal(t, 2, stats.PacketsIn)
	assert.Equal(t, 2, stats.PacketsOut)
	assert.Equal(t, 1, p.Dropped())
}

func TestMuxerFailureEndsPipeline(t *testing.T) {
	d := &scriptedDemuxer{
		streams: []container.StreamInfo{pcmInfo(0)},
		packets: []*media.Packet{packetFor(0, 0, pcmBytes(1))},
	}
	m := &recordingMuxer{fail: io.ErrShortWrite}

	p := newPipeline(t, d, m, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrMuxer)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.False(t, m.trailer)
}

func TestNewPipelineRejects(t *testing.T) {
	d := &scriptedDemuxer{streams: []container.StreamInfo{pcmInfo(0)}}

	_, err := NewPipeline(d, &recordingMuxer{})
	assert.ErrorIs(t, err, ErrNoStreams)

	_, err = NewPipeline(d, &recordingMuxer{}, WithStream(3, StreamConfig{}))
	assert.ErrorIs(t, err, ErrUnknownStream)

	_, err = NewPipeline(d, &recordingMuxer{}, WithStream(0, StreamConfig{}), WithStream(0, StreamConfig{}))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = NewPipeline(d, &recordingMuxer{}, WithStream(0, StreamConfig{Encoder: "no_such_codec"}))
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.ErrorIs(t, err, transcode.ErrUnknownCodec)
}

func TestSeekRestartsFromTarget(t *testing.T) {
	input := pcmBytes(ramp(16)...)
	out := newOutput(t)
	p := newPipeline(t, pcmDemuxer(t, input), out.muxer, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))

	ctx := context.Background()
	require.NoError(t, p.Step(ctx))
	require.NoError(t, p.Seek(0, 8))
	for {
		err := p.Step(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.NoError(t, p.Finish())

	want := append(append([]byte(nil), input[:8]...), input[16:]...)
	assert.Equal(t, want, out.Bytes())

	assert.ErrorIs(t, p.Finish(), ErrInvalidState)
	assert.ErrorIs(t, p.Step(ctx), ErrInvalidState)
}

func TestSeekOnUnseekableInput(t *testing.T) {
	d := &scriptedDemuxer{streams: []container.StreamInfo{pcmInfo(0)}}
	p := newPipeline(t, d, &recordingMuxer{}, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))
	assert.ErrorIs(t, p.Seek(0, 10), container.ErrNotSeekable)
}

func TestRunStopsOnCancel(t *testing.T) {
	out := newOutput(t)
	p := newPipeline(t, pcmDemuxer(t, pcmBytes(ramp(12)...)), out.muxer, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.Zero(t, out.Len())
}

func TestAdaptBitrateRebuildsEncoder(t *testing.T) {
	input := pcmBytes(ramp(12)...)
	out := newOutput(t)
	p := newPipeline(t, pcmDemuxer(t, input), out.muxer, WithStream(0, StreamConfig{
		Encoder: "pcm_s16le",
		BitRate: 128000,
		BitrateControl: &transcode.UpdateEncoderConfig{
			MaxBitrate:                 256000,
			MinBitrate:                 64000,
			MinBitrateChangePercentage: 10,
		},
	}))

	ctx := context.Background()
	require.NoError(t, p.Step(ctx))

	// below the change threshold
	require.NoError(t, p.AdaptBitrate(0, 130000))
	require.NoError(t, p.Step(ctx))
	assert.Zero(t, p.Stats()[0].Rebuilds)

	require.NoError(t, p.BitrateCallback(0)(64000))
	require.NoError(t, p.Run(ctx))

	assert.Equal(t, 1, p.Stats()[0].Rebuilds)
	assert.Equal(t, input, out.Bytes())
}

func TestAdaptBitrateRejects(t *testing.T) {
	out := newOutput(t)
	p := newPipeline(t, pcmDemuxer(t, pcmBytes(1)), out.muxer, WithStream(0, StreamConfig{Encoder: "pcm_s16le"}))

	assert.ErrorIs(t, p.AdaptBitrate(1, 1000), ErrUnknownStream)
	assert.ErrorIs(t, p.AdaptBitrate(0, 1000), ErrInvalidState)
}

func TestPipelineLendsHardwareDevice(t *testing.T) {
	closed := false
	dev := hwcontext.OpenDevice("test", "dev0", nil, func() error {
		closed = true
		return nil
	})

	out := newOutput(t)
	p, err := NewPipeline(pcmDemuxer(t, pcmBytes(ramp(4)...)), out.muxer,
		WithHardwareDevice(dev),
		WithStream(0, StreamConfig{Encoder: "pcm_s16le"}),
	)
	require.NoError(t, err)

	// pipeline, decoder and encoder each hold one
	assert.Equal(t, 4, dev.Refs())
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Close())
	assert.Equal(t, 1, dev.Refs())

	require.NoError(t, dev.Release())
	assert.True(t, closed)
}

func TestRunAll(t *testing.T) {
	inputs := [][]byte{pcmBytes(ramp(8)...), pcmBytes(ramp(12)...)}
	var pipelines []*Pipeline
	var outputs []*output
	for i, input := range inputs {
		out := newOutput(t)
		outputs = append(outputs, out)
		pipelines = append(pipelines, newPipeline(t, pcmDemuxer(t, input), out.muxer,
			WithName([]string{"first", "second"}[i]),
			WithStream(0, StreamConfig{Encoder: "pcm_s16le"}),
		))
	}

	require.NoError(t, RunAll(context.Background(), pipelines...))
	for i, input := range inputs {
		assert.Equal(t, input, outputs[i].Bytes())
	}

	assert.ErrorIs(t, RunAll(context.Background()), ErrNoStreams)
}

func TestRunAllReportsFailingPipeline(t *testing.T) {
	d := &scriptedDemuxer{
		streams: []container.StreamInfo{pcmInfo(0)},
		packets: []*media.Packet{packetFor(0, 0, pcmBytes(1))},
	}
	failing := newPipeline(t, d, &recordingMuxer{fail: io.ErrClosedPipe},
		WithName("broken"),
		WithStream(0, StreamConfig{Encoder: "pcm_s16le"}),
	)

	err := RunAll(context.Background(), failing)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Contains(t, err.Error(), "broken")
}
