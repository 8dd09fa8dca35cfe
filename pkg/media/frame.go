package media

import (
	"fmt"
)

type AudioFormat struct {
	SampleFormat SampleFormat
	SampleRate   int
	Layout       ChannelLayout
}

func (a AudioFormat) Channels() int {
	return a.Layout.Channels()
}

// Planes returns the number of data planes a frame of this format uses.
func (a AudioFormat) Planes() int {
	if a.SampleFormat.IsPlanar() {
		return a.Channels()
	}
	return 1
}

// BlockAlign returns the number of bytes one sample occupies in one plane.
func (a AudioFormat) BlockAlign() int {
	if a.SampleFormat.IsPlanar() {
		return a.SampleFormat.BytesPerSample()
	}
	return a.SampleFormat.BytesPerSample() * a.Channels()
}

func (a AudioFormat) Validate() error {
	if a.SampleFormat == SampleFormatNone || a.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("audio format without sample format: %w", ErrInvalidFormat)
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio format with sample rate %d: %w", a.SampleRate, ErrInvalidFormat)
	}
	if a.Channels() == 0 {
		return fmt.Errorf("audio format without channels: %w", ErrInvalidFormat)
	}
	return nil
}

func (a AudioFormat) String() string {
	return fmt.Sprintf("%s %dHz %s", a.SampleFormat, a.SampleRate, a.Layout)
}

type VideoFormat struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	ColorSpace  ColorSpace
}

func (v VideoFormat) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("video format with size %dx%d: %w", v.Width, v.Height, ErrInvalidFormat)
	}
	if v.PixelFormat.Planes() == 0 {
		return fmt.Errorf("video format without pixel format: %w", ErrInvalidFormat)
	}
	return nil
}

func (v VideoFormat) String() string {
	return fmt.Sprintf("%dx%d %s", v.Width, v.Height, v.PixelFormat)
}

// ImageSize returns the number of bytes of a tightly packed picture.
func (v VideoFormat) ImageSize() int {
	size := 0
	for i := 0; i < v.PixelFormat.Planes(); i++ {
		w, h := v.PixelFormat.PlaneSize(i, v.Width, v.Height)
		size += w * v.PixelFormat.BytesPerPixel(i) * h
	}
	return size
}

// Format describes a stream of frames. Only the variant matching Type is
// meaningful.
type Format struct {
	Type     MediaType
	Audio    AudioFormat
	Video    VideoFormat
	TimeBase Rational
}

func AudioStreamFormat(a AudioFormat, tb Rational) Format {
	return Format{Type: MediaTypeAudio, Audio: a, TimeBase: tb}
}

func VideoStreamFormat(v VideoFormat, tb Rational) Format {
	return Format{Type: MediaTypeVideo, Video: v, TimeBase: tb}
}

func (f Format) String() string {
	switch f.Type {
	case MediaTypeAudio:
		return "audio " + f.Audio.String()
	case MediaTypeVideo:
		return "video " + f.Video.String()
	default:
		return "unknown"
	}
}

// Frame is a decoded unit of audio or video.
//
// A frame's format is fixed once storage is attached; for audio only the
// occupied sample count may change within the allocated capacity. Storage is
// a reference-counted Buffer so several frames may share the same samples
// (see Ref). An empty frame (NewFrame, or after Unref) is the expected
// destination for every receive call.
type Frame struct {
	typ      MediaType
	audio    AudioFormat
	video    VideoFormat
	capacity int
	count    int
	strides  []int
	buf      *Buffer
	hardware bool

	PTS      int64
	Duration int64
	TimeBase Rational
	KeyFrame bool
}

func NewFrame() *Frame {
	return &Frame{PTS: NoTimestamp}
}

// AllocAudioFrame allocates a frame able to hold capacity samples per channel.
// The occupied count starts at capacity.
func AllocAudioFrame(format AudioFormat, capacity int) (*Frame, error) {
	f := NewFrame()
	if err := f.AllocAudio(format, capacity); err != nil {
		return nil, err
	}
	return f, nil
}

func AllocVideoFrame(format VideoFormat) (*Frame, error) {
	f := NewFrame()
	if err := f.AllocVideo(format); err != nil {
		return nil, err
	}
	return f, nil
}

// AllocAudio attaches fresh storage to an empty frame.
func (f *Frame) AllocAudio(format AudioFormat, capacity int) error {
	if f.buf != nil {
		return ErrFrameAllocated
	}
	if err := format.Validate(); err != nil {
		return err
	}
	if capacity <= 0 {
		return fmt.Errorf("audio frame capacity %d: %w", capacity, ErrAllocate)
	}

	planes := make([][]byte, format.Planes())
	strides := make([]int, len(planes))
	for i := range planes {
		strides[i] = capacity * format.BlockAlign()
		planes[i] = make([]byte, strides[i])
	}

	f.typ = MediaTypeAudio
	f.audio = format
	f.capacity = capacity
	f.count = capacity
	f.strides = strides
	f.buf = NewBuffer(planes)
	return nil
}

// AllocVideo attaches fresh, tightly packed storage to an empty frame.
func (f *Frame) AllocVideo(format VideoFormat) error {
	if f.buf != nil {
		return ErrFrameAllocated
	}
	if err := format.Validate(); err != nil {
		return err
	}

	n := format.PixelFormat.Planes()
	planes := make([][]byte, n)
	strides := make([]int, n)
	for i := 0; i < n; i++ {
		w, h := format.PixelFormat.PlaneSize(i, format.Width, format.Height)
		strides[i] = w * format.PixelFormat.BytesPerPixel(i)
		planes[i] = make([]byte, strides[i]*h)
	}

	f.typ = MediaTypeVideo
	f.video = format
	f.strides = strides
	f.buf = NewBuffer(planes)
	return nil
}

// WrapVideoFrame builds a video frame around storage owned by another
// subsystem. release runs when the last reference goes away, but only when
// owned is true.
func WrapVideoFrame(format VideoFormat, planes [][]byte, strides []int, release func(), owned bool) (*Frame, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if len(planes) != format.PixelFormat.Planes() || len(strides) != len(planes) {
		return nil, fmt.Errorf("wrapping %d planes for %s: %w", len(planes), format.PixelFormat, ErrInvalidFormat)
	}

	f := NewFrame()
	f.typ = MediaTypeVideo
	f.video = format
	f.strides = append([]int(nil), strides...)
	f.buf = WrapBuffer(planes, release, owned)
	return f, nil
}

func (f *Frame) MediaType() MediaType {
	return f.typ
}

func (f *Frame) IsEmpty() bool {
	return f.buf == nil
}

func (f *Frame) Audio() AudioFormat {
	return f.audio
}

func (f *Frame) Video() VideoFormat {
	return f.video
}

func (f *Frame) Format() Format {
	return Format{Type: f.typ, Audio: f.audio, Video: f.video, TimeBase: f.TimeBase}
}

// Capacity returns the number of samples per channel the storage can hold.
func (f *Frame) Capacity() int {
	return f.capacity
}

// Count returns the number of occupied samples per channel.
func (f *Frame) Count() int {
	return f.count
}

// SetCount changes the occupied sample count within capacity.
func (f *Frame) SetCount(n int) error {
	if f.typ != MediaTypeAudio {
		return fmt.Errorf("sample count on %s frame: %w", f.typ, ErrInvalidFormat)
	}
	if n < 0 || n > f.capacity {
		return fmt.Errorf("sample count %d outside [0, %d]: %w", n, f.capacity, ErrRange)
	}
	f.count = n
	return nil
}

func (f *Frame) Hardware() bool {
	return f.hardware
}

func (f *Frame) SetHardware(v bool) {
	f.hardware = v
}

func (f *Frame) PlaneCount() int {
	if f.buf == nil {
		return 0
	}
	return len(f.buf.planes)
}

// Plane returns the storage of plane i. For audio it spans the full capacity.
func (f *Frame) Plane(i int) []byte {
	if f.buf == nil || i < 0 || i >= len(f.buf.planes) {
		return nil
	}
	return f.buf.planes[i]
}

// Samples returns the occupied part of audio plane i.
func (f *Frame) Samples(i int) []byte {
	p := f.Plane(i)
	if p == nil || f.typ != MediaTypeAudio {
		return nil
	}
	return p[:f.count*f.audio.BlockAlign()]
}

func (f *Frame) Stride(i int) int {
	if i < 0 || i >= len(f.strides) {
		return 0
	}
	return f.strides[i]
}

func (f *Frame) Buffer() *Buffer {
	return f.buf
}

func (f *Frame) IsWritable() bool {
	return f.buf != nil && f.buf.Writable()
}

// CopyProps copies timing properties from src.
func (f *Frame) CopyProps(src *Frame) {
	f.PTS = src.PTS
	f.Duration = src.Duration
	f.TimeBase = src.TimeBase
	f.KeyFrame = src.KeyFrame
}

// Ref makes f share src's storage. Whatever f held before is released.
func (f *Frame) Ref(src *Frame) error {
	if src.buf == nil {
		return ErrEmptyFrame
	}
	if f == src {
		return nil
	}
	f.Unref()

	f.typ = src.typ
	f.audio = src.audio
	f.video = src.video
	f.capacity = src.capacity
	f.count = src.count
	f.strides = append([]int(nil), src.strides...)
	f.hardware = src.hardware
	f.buf = src.buf.ref()
	f.CopyProps(src)
	return nil
}

// MoveRef moves everything from src to f, leaving src empty.
func (f *Frame) MoveRef(src *Frame) {
	if f == src {
		return
	}
	f.Unref()
	*f = *src
	*src = Frame{PTS: NoTimestamp}
}

// Unref drops the storage reference and resets f to an empty frame.
func (f *Frame) Unref() {
	if f.buf != nil {
		f.buf.unref()
	}
	*f = Frame{PTS: NoTimestamp}
}

// Clone returns a deep copy backed by owned storage.
func (f *Frame) Clone() (*Frame, error) {
	if f.buf == nil {
		return nil, ErrEmptyFrame
	}

	c := NewFrame()
	switch f.typ {
	case MediaTypeAudio:
		if err := c.AllocAudio(f.audio, f.capacity); err != nil {
			return nil, err
		}
		c.count = f.count
	case MediaTypeVideo:
		if err := c.AllocVideo(f.video); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidFormat
	}

	if err := c.CopyData(f); err != nil {
		return nil, err
	}
	c.CopyProps(f)
	return c, nil
}

// CopyData copies sample or pixel data from src into f. Both frames must have
// the same format; f must be able to hold src's sample count.
func (f *Frame) CopyData(src *Frame) error {
	if f.buf == nil || src.buf == nil {
		return ErrEmptyFrame
	}
	if f.typ != src.typ {
		return ErrFormatMismatch
	}

	switch f.typ {
	case MediaTypeAudio:
		if f.audio.SampleFormat != src.audio.SampleFormat || f.audio.Channels() != src.audio.Channels() {
			return ErrFormatMismatch
		}
		if src.count > f.capacity {
			return fmt.Errorf("copying %d samples into capacity %d: %w", src.count, f.capacity, ErrRange)
		}
		for i := range src.buf.planes {
			copy(f.buf.planes[i], src.Samples(i))
		}
		f.count = src.count
	case MediaTypeVideo:
		if f.video.Width != src.video.Width || f.video.Height != src.video.Height || f.video.PixelFormat != src.video.PixelFormat {
			return ErrFormatMismatch
		}
		for i := range src.buf.planes {
			w, h := src.video.PixelFormat.PlaneSize(i, src.video.Width, src.video.Height)
			rowBytes := w * src.video.PixelFormat.BytesPerPixel(i)
			for y := 0; y < h; y++ {
				copy(f.buf.planes[i][y*f.strides[i]:y*f.strides[i]+rowBytes], src.buf.planes[i][y*src.strides[i]:y*src.strides[i]+rowBytes])
			}
		}
	}
	return nil
}

// MakeWritable ensures f holds the only reference to its storage, copying
// the data when needed.
func (f *Frame) MakeWritable() error {
	if f.buf == nil {
		return ErrEmptyFrame
	}
	if f.buf.Writable() && !f.hardware {
		return nil
	}

	c, err := f.Clone()
	if err != nil {
		return err
	}
	c.hardware = false
	f.MoveRef(c)
	return nil
}

// VideoBytes returns the picture as one tightly packed byte slice, planes in
// order.
func (f *Frame) VideoBytes() []byte {
	if f.typ != MediaTypeVideo || f.buf == nil {
		return nil
	}

	out := make([]byte, 0, f.video.ImageSize())
	for i := range f.buf.planes {
		w, h := f.video.PixelFormat.PlaneSize(i, f.video.Width, f.video.Height)
		rowBytes := w * f.video.PixelFormat.BytesPerPixel(i)
		for y := 0; y < h; y++ {
			out = append(out, f.buf.planes[i][y*f.strides[i]:y*f.strides[i]+rowBytes]...)
		}
	}
	return out
}

// FillVideo copies a tightly packed picture into f's planes.
func (f *Frame) FillVideo(data []byte) error {
	if f.typ != MediaTypeVideo || f.buf == nil {
		return ErrEmptyFrame
	}
	if len(data) < f.video.ImageSize() {
		return fmt.Errorf("%d bytes for a %d byte picture: %w", len(data), f.video.ImageSize(), ErrRange)
	}

	offset := 0
	for i := range f.buf.planes {
		w, h := f.video.PixelFormat.PlaneSize(i, f.video.Width, f.video.Height)
		rowBytes := w * f.video.PixelFormat.BytesPerPixel(i)
		for y := 0; y < h; y++ {
			copy(f.buf.planes[i][y*f.strides[i]:], data[offset:offset+rowBytes])
			offset += rowBytes
		}
	}
	return nil
}
