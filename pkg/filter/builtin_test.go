package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/media"
)

// runVideo pushes one frame through segment and returns what comes out.
func runVideo(t *testing.T, format media.VideoFormat, segment string, in *media.Frame) *media.Frame {
	t.Helper()
	g, src := newVideoGraph(t, format)
	outputs, err := g.Parse(segment, map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	sink, err := g.AddBufferSink(outputs["out"])
	require.NoError(t, err)
	require.NoError(t, g.Configure())

	require.NoError(t, src.PushFrame(in))
	frames := collect(t, sink)
	require.Len(t, frames, 1)
	return frames[0]
}

func runAudio(t *testing.T, segment string, in ...*media.Frame) []*media.Frame {
	t.Helper()
	g, src := newAudioGraph(t)
	outputs, err := g.Parse(segment, map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	sink, err := g.AddBufferSink(outputs["out"])
	require.NoError(t, err)
	require.NoError(t, g.Configure())

	for _, f := range in {
		require.NoError(t, src.SendFrame(f))
	}
	return collect(t, sink)
}

func TestFlips(t *testing.T) {
	pixels := []byte{0, 1, 2, 3, 4, 5, 6, 7}

	out := runVideo(t, gray4x2, "hflip", grayFrame(t, gray4x2, 0, pixels...))
	assert.Equal(t, []byte{3, 2, 1, 0, 7, 6, 5, 4}, out.VideoBytes())

	out = runVideo(t, gray4x2, "vflip", grayFrame(t, gray4x2, 0, pixels...))
	assert.Equal(t, []byte{4, 5, 6, 7, 0, 1, 2, 3}, out.VideoBytes())
}

func TestFlipKeepsMultiBytePixels(t *testing.T) {
	rgb := media.VideoFormat{Width: 2, Height: 1, PixelFormat: media.PixelFormatRGB24}
	out := runVideo(t, rgb, "hflip", grayFrame(t, rgb, 0, 1, 2, 3, 4, 5, 6))
	assert.Equal(t, []byte{4, 5, 6, 1, 2, 3}, out.VideoBytes())
}

func TestTransposeDirections(t *testing.T) {
	pixels := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	for dir, want := range map[string][]byte{
		"cclock_flip": {0, 4, 1, 5, 2, 6, 3, 7},
		"clock":       {4, 0, 5, 1, 6, 2, 7, 3},
		"cclock":      {3, 7, 2, 6, 1, 5, 0, 4},
		"clock_flip":  {7, 3, 6, 2, 5, 1, 4, 0},
		"1":           {4, 0, 5, 1, 6, 2, 7, 3},
	} {
		t.Run(dir, func(t *testing.T) {
			out := runVideo(t, gray4x2, "transpose="+dir, grayFrame(t, gray4x2, 0, pixels...))
			assert.Equal(t, 2, out.Video().Width)
			assert.Equal(t, 4, out.Video().Height)
			assert.Equal(t, want, out.VideoBytes())
		})
	}
}

func TestTransposeSubsampledPicture(t *testing.T) {
	yuv := media.VideoFormat{Width: 4, Height: 2, PixelFormat: media.PixelFormatYUV420P}
	in := grayFrame(t, yuv, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)

	out := runVideo(t, yuv, "transpose=clock", in)
	assert.Equal(t, media.VideoFormat{Width: 2, Height: 4, PixelFormat: media.PixelFormatYUV420P}, out.Video())
	// luma as above, each chroma plane turns from 2x1 into 1x2
	assert.Equal(t, []byte{4, 0, 5, 1, 6, 2, 7, 3, 8, 9, 10, 11}, out.VideoBytes())
}

func TestTransposeRejectsAsymmetricSubsampling(t *testing.T) {
	yuv := media.VideoFormat{Width: 4, Height: 2, PixelFormat: media.PixelFormatYUV422P}
	g, src := newVideoGraph(t, yuv)
	outputs, err := g.Parse("transpose", map[string]*Port{"in": src.Output()})
	require.NoError(t, err)
	_, err = g.AddBufferSink(outputs["out"])
	require.NoError(t, err)

	assert.ErrorIs(t, g.Configure(), media.ErrFormatMismatch)
	assert.False(t, g.Configured())
}

func TestTransposeRejectsUnknownDirection(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)
	_, err := g.AddNode("transpose", KV("dir", "sideways"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = g.AddNode("transpose", KV("dir", "7"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCopyDetachesStorage(t *testing.T) {
	in := grayFrame(t, gray4x2, 3, 0, 1, 2, 3, 4, 5, 6, 7)
	out := runVideo(t, gray4x2, "copy", in)
	assert.NotSame(t, in.Buffer(), out.Buffer())
	assert.Equal(t, in.VideoBytes(), out.VideoBytes())
	assert.Equal(t, int64(3), out.PTS)

	in = grayFrame(t, gray4x2, 3, 0, 1, 2, 3, 4, 5, 6, 7)
	out = runVideo(t, gray4x2, "null", in)
	assert.Same(t, in.Buffer(), out.Buffer())
}

func TestVolume(t *testing.T) {
	frames := runAudio(t, "volume=0.5", s16Frame(t, 0, 1000, -1000, 32767))
	require.Len(t, frames, 1)
	assert.Equal(t, []int16{500, -500, 16384}, s16Samples(frames[0]))

	frames = runAudio(t, "volume=volume=2", s16Frame(t, 0, 20000, -20000, 3))
	require.Len(t, frames, 1)
	assert.Equal(t, []int16{32767, -32768, 6}, s16Samples(frames[0]))
}

func TestVolumeLeavesSharedFramesAlone(t *testing.T) {
	in := s16Frame(t, 0, 100, 200)
	frames := runAudio(t, "volume=3", in)
	require.Len(t, frames, 1)

	assert.Equal(t, []int16{300, 600}, s16Samples(frames[0]))
	assert.Equal(t, []int16{100, 200}, s16Samples(in))
}

func TestVolumeRejectsVideo(t *testing.T) {
	g, src := newVideoGraph(t, gray4x2)
	_, err := g.AddNode("volume", nil, src.Output())
	assert.ErrorIs(t, err, ErrLink)
}

func TestSetPTS(t *testing.T) {
	frames := runAudio(t, "asetpts=PTS-STARTPTS", s16Frame(t, 800, 1), s16Frame(t, 801, 2))
	require.Len(t, frames, 2)
	assert.Equal(t, int64(0), frames[0].PTS)
	assert.Equal(t, int64(1), frames[1].PTS)

	g, src := newVideoGraph(t, gray4x2)
	_, err := g.AddNode("setpts", KV("expr", "2*PTS"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNullSinkSwallowsFrames(t *testing.T) {
	g, src := newAudioGraph(t)
	split, err := g.AddNode("asplit", nil, src.Output())
	require.NoError(t, err)
	_, err = g.AddNode("anullsink", nil, split.Output(1))
	require.NoError(t, err)
	sink, err := g.AddBufferSink(split.Output(0))
	require.NoError(t, err)
	require.NoError(t, g.Configure())

	require.NoError(t, src.PushFrame(s16Frame(t, 0, 1, 2)))
	require.NoError(t, src.PushFrame(nil))
	assert.Len(t, collect(t, sink), 1)
	assert.True(t, sink.Ended())
}

func TestOptionResolution(t *testing.T) {
	g, src := newAudioGraph(t)

	_, err := g.AddNode("volume", KV("gain", "2"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = g.AddNode("volume", Args{{Value: "2"}, {Value: "3"}}, src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = g.AddNode("volume", KV("volume", "loud"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = g.AddNode("asplit", KV("outputs", "0"), src.Output())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.False(t, src.Output().Connected())
}

func TestBuiltinKindsRegistered(t *testing.T) {
	names := Filters()
	for _, kind := range []string{
		"buffer", "abuffer", "buffersink", "abuffersink", "null", "anull", "copy", "acopy",
		"hflip", "vflip", "transpose", "split", "asplit", "interleave", "ainterleave",
		"volume", "setpts", "nullsink", "anullsink",
	} {
		assert.Contains(t, names, kind)
	}
	assert.Error(t, Register(Definition{Name: "null", New: newSink}))
}
