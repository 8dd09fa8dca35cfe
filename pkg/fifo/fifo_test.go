package fifo

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/media"
)

var stereoS16 = media.AudioFormat{
	SampleFormat: media.SampleFormatS16,
	SampleRate:   48000,
	Layout:       media.ChannelLayoutStereo,
}

// rampFrame returns a stereo s16 frame holding n samples whose left channel
// counts up from start.
func rampFrame(t *testing.T, start, n int) *media.Frame {
	t.Helper()
	f, err := media.AllocAudioFrame(stereoS16, n)
	require.NoError(t, err)
	p := f.Plane(0)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(start+i))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(1000+start+i))
	}
	return f
}

func leftSamples(f *media.Frame) []int {
	out := make([]int, f.Count())
	p := f.Samples(0)
	for i := range out {
		out[i] = int(binary.LittleEndian.Uint16(p[i*4:]))
	}
	return out
}

func seq(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func TestQueueOrder(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 4)
	require.NoError(t, err)

	require.NoError(t, q.Write(rampFrame(t, 0, 3)))
	require.NoError(t, q.Write(rampFrame(t, 3, 5)))
	assert.Equal(t, 8, q.Size())
	assert.Equal(t, q.Capacity(), q.Size()+q.Space())

	out, err := media.AllocAudioFrame(stereoS16, 5)
	require.NoError(t, err)

	n, err := q.Read(out, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, seq(0, 5), leftSamples(out))

	n, err = q.Read(out, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, out.Count())
	assert.Equal(t, seq(5, 3), leftSamples(out))
	assert.Equal(t, 0, q.Size())
}

func TestQueueWrapAround(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 8)
	require.NoError(t, err)
	out, err := media.AllocAudioFrame(stereoS16, 8)
	require.NoError(t, err)

	next := 0
	want := 0
	for round := 0; round < 10; round++ {
		require.NoError(t, q.Write(rampFrame(t, next, 5)))
		next += 5
		n, err := q.Read(out, 4)
		require.NoError(t, err)
		assert.Equal(t, seq(want, n), leftSamples(out))
		want += n
		assert.Equal(t, q.Capacity(), q.Size()+q.Space())
	}
	assert.Equal(t, next-want, q.Size())
}

func TestQueuePlanar(t *testing.T) {
	format := stereoS16
	format.SampleFormat = media.SampleFormatFLTP

	q, err := New(media.SampleFormatFLTP, 2, 2)
	require.NoError(t, err)

	in, err := media.AllocAudioFrame(format, 3)
	require.NoError(t, err)
	for i := range in.Plane(0) {
		in.Plane(0)[i] = byte(i)
		in.Plane(1)[i] = byte(100 + i)
	}
	require.NoError(t, q.Write(in))

	out, err := media.AllocAudioFrame(format, 3)
	require.NoError(t, err)
	n, err := q.Read(out, 3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.Equal(t, in.Samples(0), out.Samples(0))
	assert.Equal(t, in.Samples(1), out.Samples(1))
}

func TestPeekIsIdempotent(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 16)
	require.NoError(t, err)
	require.NoError(t, q.Write(rampFrame(t, 0, 6)))

	a, err := media.AllocAudioFrame(stereoS16, 4)
	require.NoError(t, err)
	b, err := media.AllocAudioFrame(stereoS16, 4)
	require.NoError(t, err)

	n, err := q.Peek(a, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = q.Peek(b, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, leftSamples(a), leftSamples(b))
	assert.Equal(t, 6, q.Size())
}

func TestReadRange(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 16)
	require.NoError(t, err)
	require.NoError(t, q.Write(rampFrame(t, 0, 6)))

	out, err := media.AllocAudioFrame(stereoS16, 4)
	require.NoError(t, err)

	_, err = q.Read(out, 0)
	assert.ErrorIs(t, err, ErrRange)
	_, err = q.Read(out, 5)
	assert.ErrorIs(t, err, ErrRange)
	assert.Equal(t, 6, q.Size())
}

func TestFormatMismatchLeavesQueueUntouched(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 16)
	require.NoError(t, err)
	require.NoError(t, q.Write(rampFrame(t, 0, 3)))

	mono := stereoS16
	mono.Layout = media.ChannelLayoutMono
	wrong, err := media.AllocAudioFrame(mono, 3)
	require.NoError(t, err)

	err = q.Write(wrong)
	assert.ErrorIs(t, err, media.ErrFormatMismatch)
	assert.Equal(t, 3, q.Size())

	float := stereoS16
	float.SampleFormat = media.SampleFormatFLT
	wrong, err = media.AllocAudioFrame(float, 3)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Write(wrong), media.ErrFormatMismatch)

	video, err := media.AllocVideoFrame(media.VideoFormat{Width: 2, Height: 2, PixelFormat: media.PixelFormatGray8})
	require.NoError(t, err)
	assert.ErrorIs(t, q.Write(video), media.ErrFormatMismatch)

	assert.Equal(t, 3, q.Size())
}

func TestDrainClearRealloc(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 4)
	require.NoError(t, err)
	require.NoError(t, q.Write(rampFrame(t, 0, 4)))

	assert.Equal(t, 2, q.Drain(2))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 2, q.Drain(10))
	assert.Equal(t, 0, q.Size())

	require.NoError(t, q.Write(rampFrame(t, 0, 4)))
	assert.ErrorIs(t, q.Realloc(2), ErrRange)
	require.NoError(t, q.Realloc(32))
	assert.Equal(t, 32, q.Capacity())
	assert.Equal(t, 4, q.Size())

	q.Clear()
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 32, q.Space())
}

func TestTimestampsFollowSamples(t *testing.T) {
	q, err := New(media.SampleFormatS16, 2, 16)
	require.NoError(t, err)

	in := rampFrame(t, 0, 960)
	in.PTS = 9600
	in.TimeBase = media.NewRational(1, 48000)
	require.NoError(t, q.Write(in))

	out, err := media.AllocAudioFrame(stereoS16, 480)
	require.NoError(t, err)

	_, err = q.Read(out, 480)
	require.NoError(t, err)
	assert.Equal(t, int64(9600), out.PTS)

	_, err = q.Read(out, 480)
	require.NoError(t, err)
	assert.Equal(t, int64(10080), out.PTS)
}

func TestTimestampsDoNotDrift(t *testing.T) {
	mono := media.AudioFormat{
		SampleFormat: media.SampleFormatS16,
		SampleRate:   44100,
		Layout:       media.ChannelLayoutMono,
	}
	sampleTB := media.NewRational(1, 44100)
	ms := media.NewRational(1, 1000)

	q, err := New(media.SampleFormatS16, 1, 2048)
	require.NoError(t, err)
	out, err := media.AllocAudioFrame(mono, 1000)
	require.NoError(t, err)

	var read int64
	for i := 0; i < 500; i++ {
		in, err := media.AllocAudioFrame(mono, 1024)
		require.NoError(t, err)
		in.PTS = media.Rescale(int64(i*1024), sampleTB, ms)
		in.TimeBase = ms
		require.NoError(t, q.Write(in))

		for q.Size() > 1000 {
			n, err := q.Read(out, 1000)
			require.NoError(t, err)
			require.Equal(t, media.Rescale(read, sampleTB, ms), out.PTS, "after %d samples", read)
			read += int64(n)
		}
	}
	assert.Greater(t, read, int64(500000))
}

func TestInvalidQueue(t *testing.T) {
	_, err := New(media.SampleFormatNone, 2, 4)
	assert.ErrorIs(t, err, media.ErrInvalidFormat)
	_, err = New(media.SampleFormatS16, 0, 4)
	assert.ErrorIs(t, err, media.ErrInvalidFormat)
}
