// Package fifo implements the audio rate-adaptation queue: a growable ring
// buffer of samples that decouples the frame size a producer emits from the
// frame size a consumer needs, typically a decoder feeding an encoder with a
// fixed block size.
package fifo

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harshabose/avpipe/pkg/logging"
	"github.com/harshabose/avpipe/pkg/media"
)

// ErrRange is returned for read counts outside (0, frame capacity] and for
// reallocations below the buffered size.
var ErrRange = media.ErrRange

// Queue is a FIFO of audio samples bound to one sample format and channel
// count. It is not safe for concurrent use.
type Queue struct {
	format   media.SampleFormat
	channels int
	align    int // bytes per sample per plane
	planes   [][]byte
	capacity int
	head     int
	size     int

	// base is the pts of the first sample written into an empty queue, or
	// media.NoTimestamp. consumed counts samples drained since then.
	base       int64
	consumed   int64
	timeBase   media.Rational
	sampleRate int
}

// New creates a queue for channels channels of format with room for capacity
// samples per channel before it has to grow.
func New(format media.SampleFormat, channels, capacity int) (*Queue, error) {
	if format.BytesPerSample() == 0 || channels <= 0 {
		return nil, fmt.Errorf("fifo for %s with %d channels: %w", format, channels, media.ErrInvalidFormat)
	}
	if capacity <= 0 {
		capacity = 1
	}

	q := &Queue{
		format:   format,
		channels: channels,
		align:    format.BytesPerSample(),
		base:     media.NoTimestamp,
	}
	if !format.IsPlanar() {
		q.align *= channels
	}
	q.planes = q.allocPlanes(capacity)
	q.capacity = capacity

	return q, nil
}

// NewForFrame creates a queue matching the format of frame.
func NewForFrame(frame *media.Frame, capacity int) (*Queue, error) {
	a := frame.Audio()
	return New(a.SampleFormat, a.Channels(), capacity)
}

func (q *Queue) allocPlanes(capacity int) [][]byte {
	n := 1
	if q.format.IsPlanar() {
		n = q.channels
	}
	planes := make([][]byte, n)
	for i := range planes {
		planes[i] = make([]byte, capacity*q.align)
	}
	return planes
}

func (q *Queue) SampleFormat() media.SampleFormat {
	return q.format
}

func (q *Queue) Channels() int {
	return q.channels
}

// Size returns the number of samples per channel available for reading.
func (q *Queue) Size() int {
	return q.size
}

// Space returns the number of samples per channel that can be written
// without growing.
func (q *Queue) Space() int {
	return q.capacity - q.size
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Realloc grows the backing storage to hold capacity samples. Shrinking below
// the buffered size is refused.
func (q *Queue) Realloc(capacity int) error {
	if capacity < q.size {
		return fmt.Errorf("realloc to %d with %d buffered: %w", capacity, q.size, ErrRange)
	}
	if capacity == q.capacity {
		return nil
	}

	planes := q.allocPlanes(capacity)
	for i := range planes {
		q.copyOut(planes[i], i, 0, q.size)
	}
	q.planes = planes
	q.capacity = capacity
	q.head = 0
	return nil
}

func (q *Queue) check(frame *media.Frame) error {
	if frame.MediaType() != media.MediaTypeAudio {
		return fmt.Errorf("fifo accepts audio, got %s: %w", frame.MediaType(), media.ErrFormatMismatch)
	}
	a := frame.Audio()
	if a.SampleFormat != q.format || a.Channels() != q.channels {
		return fmt.Errorf("fifo bound to %s/%dch, got %s/%dch: %w", q.format, q.channels, a.SampleFormat, a.Channels(), media.ErrFormatMismatch)
	}
	return nil
}

// Write appends every occupied sample of frame, growing storage when needed.
// A frame of another format is rejected and leaves the queue untouched.
func (q *Queue) Write(frame *media.Frame) error {
	if err := q.check(frame); err != nil {
		return err
	}

	n := frame.Count()
	if n == 0 {
		return nil
	}

	if q.Space() < n {
		grow := q.capacity * 2
		if grow < q.size+n {
			grow = q.size + n
		}
		if err := q.Realloc(grow); err != nil {
			return err
		}
		logging.WithComponent("fifo").WithFields(logrus.Fields{
			"capacity": grow,
			"buffered": q.size,
		}).Debug("grew sample queue")
	}

	if q.size == 0 && frame.PTS != media.NoTimestamp {
		q.base = frame.PTS
		q.consumed = 0
		q.timeBase = frame.TimeBase
		q.sampleRate = frame.Audio().SampleRate
	}

	tail := (q.head + q.size) % q.capacity
	for i := range q.planes {
		src := frame.Samples(i)
		first := min(n, q.capacity-tail)
		copy(q.planes[i][tail*q.align:], src[:first*q.align])
		if first < n {
			copy(q.planes[i], src[first*q.align:n*q.align])
		}
	}
	q.size += n
	return nil
}

// copyOut copies count samples of plane starting offset samples after head
// into dst.
func (q *Queue) copyOut(dst []byte, plane, offset, count int) {
	start := (q.head + offset) % q.capacity
	first := min(count, q.capacity-start)
	copy(dst, q.planes[plane][start*q.align:(start+first)*q.align])
	if first < count {
		copy(dst[first*q.align:], q.planes[plane][:(count-first)*q.align])
	}
}

func (q *Queue) prepare(frame *media.Frame, count int) error {
	if frame.IsEmpty() {
		return media.ErrEmptyFrame
	}
	if err := q.check(frame); err != nil {
		return err
	}
	if count <= 0 || count > frame.Capacity() {
		return fmt.Errorf("reading %d samples into capacity %d: %w", count, frame.Capacity(), ErrRange)
	}
	return frame.MakeWritable()
}

// Peek copies up to count samples into frame without consuming them.
func (q *Queue) Peek(frame *media.Frame, count int) (int, error) {
	if err := q.prepare(frame, count); err != nil {
		return 0, err
	}

	n := min(count, q.size)
	for i := range q.planes {
		q.copyOut(frame.Plane(i), i, 0, n)
	}
	if err := frame.SetCount(n); err != nil {
		return 0, err
	}
	frame.PTS = q.pts()
	frame.TimeBase = q.timeBase
	return n, nil
}

// Read moves up to count samples into frame and sets the frame's count to the
// number actually read, which may be anything from zero to count. It never
// blocks: a short read means the queue ran dry.
func (q *Queue) Read(frame *media.Frame, count int) (int, error) {
	n, err := q.Peek(frame, count)
	if err != nil {
		return 0, err
	}
	q.Drain(n)
	return n, nil
}

// Drain discards up to n samples from the head.
func (q *Queue) Drain(n int) int {
	n = min(max(n, 0), q.size)
	q.head = (q.head + n) % q.capacity
	q.size -= n

	if q.size == 0 {
		q.head = 0
		q.base = media.NoTimestamp
	}
	q.consumed += int64(n)
	return n
}

// pts of the sample at head. The whole consumed count is rescaled at once so
// rounding never accumulates.
func (q *Queue) pts() int64 {
	if q.base == media.NoTimestamp {
		return media.NoTimestamp
	}
	if q.timeBase.IsZero() || q.sampleRate <= 0 {
		return q.base + q.consumed
	}
	return q.base + media.Rescale(q.consumed, media.NewRational(1, q.sampleRate), q.timeBase)
}

// Clear drops every buffered sample. Capacity is unchanged.
func (q *Queue) Clear() {
	q.head = 0
	q.size = 0
	q.base = media.NoTimestamp
	q.consumed = 0
}
