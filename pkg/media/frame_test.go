package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereoS16 = AudioFormat{SampleFormat: SampleFormatS16, SampleRate: 48000, Layout: ChannelLayoutStereo}

func TestAllocAudioFrame(t *testing.T) {
	f, err := AllocAudioFrame(stereoS16, 1024)
	require.NoError(t, err)

	assert.Equal(t, MediaTypeAudio, f.MediaType())
	assert.Equal(t, 1024, f.Capacity())
	assert.Equal(t, 1024, f.Count())
	assert.Equal(t, 1, f.PlaneCount())
	assert.Len(t, f.Plane(0), 1024*4)

	require.NoError(t, f.SetCount(10))
	assert.Len(t, f.Samples(0), 40)
	assert.ErrorIs(t, f.SetCount(1025), ErrRange)
	assert.ErrorIs(t, f.SetCount(-1), ErrRange)
}

func TestAllocAudioFramePlanar(t *testing.T) {
	f, err := AllocAudioFrame(AudioFormat{SampleFormat: SampleFormatFLTP, SampleRate: 44100, Layout: ChannelLayout5Point1}, 256)
	require.NoError(t, err)

	assert.Equal(t, 6, f.PlaneCount())
	assert.Len(t, f.Plane(5), 256*4)
}

func TestAllocAudioFrameInvalid(t *testing.T) {
	_, err := AllocAudioFrame(AudioFormat{SampleRate: 48000, Layout: ChannelLayoutMono}, 10)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = AllocAudioFrame(stereoS16, 0)
	assert.ErrorIs(t, err, ErrAllocate)
}

func TestFormatIsImmutable(t *testing.T) {
	f, err := AllocAudioFrame(stereoS16, 16)
	require.NoError(t, err)

	assert.ErrorIs(t, f.AllocAudio(stereoS16, 32), ErrFrameAllocated)

	f.Unref()
	require.NoError(t, f.AllocAudio(stereoS16, 32))
	assert.Equal(t, 32, f.Capacity())
}

func TestAllocVideoFrame(t *testing.T) {
	f, err := AllocVideoFrame(VideoFormat{Width: 5, Height: 3, PixelFormat: PixelFormatYUV420P})
	require.NoError(t, err)

	assert.Equal(t, 3, f.PlaneCount())
	assert.Equal(t, 5, f.Stride(0))
	assert.Equal(t, 3, f.Stride(1))
	assert.Len(t, f.Plane(1), 3*2)
	assert.Equal(t, 15+6+6, f.Video().ImageSize())
}

func TestRefSharesStorage(t *testing.T) {
	src, err := AllocVideoFrame(VideoFormat{Width: 2, Height: 2, PixelFormat: PixelFormatGray8})
	require.NoError(t, err)
	src.PTS = 42

	dst := NewFrame()
	require.NoError(t, dst.Ref(src))
	assert.Equal(t, 2, src.Buffer().Refs())
	assert.False(t, src.IsWritable())
	assert.Equal(t, int64(42), dst.PTS)

	require.NoError(t, dst.MakeWritable())
	dst.Plane(0)[0] = 9
	assert.Equal(t, byte(0), src.Plane(0)[0])
	assert.True(t, src.IsWritable())
}

func TestUnrefReleasesOnlyOwnedStorage(t *testing.T) {
	format := VideoFormat{Width: 2, Height: 1, PixelFormat: PixelFormatGray8}

	released := 0
	borrowed, err := WrapVideoFrame(format, [][]byte{{1, 2}}, []int{2}, func() { released++ }, false)
	require.NoError(t, err)
	borrowed.Unref()
	assert.Equal(t, 0, released)
	assert.True(t, borrowed.IsEmpty())

	owned, err := WrapVideoFrame(format, [][]byte{{1, 2}}, []int{2}, func() { released++ }, true)
	require.NoError(t, err)
	other := NewFrame()
	require.NoError(t, other.Ref(owned))
	owned.Unref()
	assert.Equal(t, 0, released)
	other.Unref()
	assert.Equal(t, 1, released)
}

func TestMoveRef(t *testing.T) {
	src, err := AllocAudioFrame(stereoS16, 8)
	require.NoError(t, err)
	src.PTS = 7

	dst := NewFrame()
	dst.MoveRef(src)

	assert.True(t, src.IsEmpty())
	assert.Equal(t, NoTimestamp, src.PTS)
	assert.Equal(t, int64(7), dst.PTS)
	assert.Equal(t, 1, dst.Buffer().Refs())
}

func TestVideoBytesRoundTrip(t *testing.T) {
	f, err := AllocVideoFrame(VideoFormat{Width: 4, Height: 2, PixelFormat: PixelFormatNV12})
	require.NoError(t, err)

	data := make([]byte, f.Video().ImageSize())
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, f.FillVideo(data))
	assert.Equal(t, data, f.VideoBytes())

	assert.ErrorIs(t, f.FillVideo(data[:3]), ErrRange)
}
