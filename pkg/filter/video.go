package filter

import (
	"fmt"
	"strconv"

	"github.com/harshabose/avpipe/pkg/media"
)

func init() {
	mustRegister(Definition{Name: "hflip", MediaType: media.MediaTypeVideo, New: newRemap(flipHorizontal)})
	mustRegister(Definition{Name: "vflip", MediaType: media.MediaTypeVideo, New: newRemap(flipVertical)})
	mustRegister(Definition{Name: "transpose", MediaType: media.MediaTypeVideo, Options: []string{"dir"}, New: newTranspose})
}

// Transpose directions, numbered as the dir option accepts them.
const (
	TransposeCClockFlip = iota
	TransposeClock
	TransposeCClock
	TransposeClockFlip
)

var transposeNames = map[string]int{
	"cclock_flip": TransposeCClockFlip,
	"clock":       TransposeClock,
	"cclock":      TransposeCClock,
	"clock_flip":  TransposeClockFlip,
}

// mapping returns the source pixel for destination pixel (x, y) of a plane
// whose source is w x h.
type mapping struct {
	swap bool
	at   func(x, y, w, h int) (int, int)
}

var (
	flipHorizontal = mapping{at: func(x, y, w, _ int) (int, int) { return w - 1 - x, y }}
	flipVertical   = mapping{at: func(x, y, _, h int) (int, int) { return x, h - 1 - y }}

	transposeMappings = [4]mapping{
		TransposeCClockFlip: {swap: true, at: func(x, y, _, _ int) (int, int) { return y, x }},
		TransposeClock:      {swap: true, at: func(x, y, _, h int) (int, int) { return y, h - 1 - x }},
		TransposeCClock:     {swap: true, at: func(x, y, w, _ int) (int, int) { return w - 1 - y, x }},
		TransposeClockFlip:  {swap: true, at: func(x, y, w, h int) (int, int) { return w - 1 - y, h - 1 - x }},
	}
)

func newTranspose(o Options) (Processor, error) {
	dir := o.String("dir", "cclock_flip")
	d, ok := transposeNames[dir]
	if !ok {
		n, err := strconv.Atoi(dir)
		if err != nil || n < 0 || n > 3 {
			return nil, fmt.Errorf("transpose dir=%q: %w", dir, ErrInvalidArgument)
		}
		d = n
	}
	return &remap{m: transposeMappings[d]}, nil
}

// remap moves pixels into a new picture following a fixed mapping.
type remap struct {
	m      mapping
	format media.VideoFormat
}

func newRemap(m mapping) func(Options) (Processor, error) {
	return func(Options) (Processor, error) {
		return &remap{m: m}, nil
	}
}

func (r *remap) NumInputs() int  { return 1 }
func (r *remap) NumOutputs() int { return 1 }

func (r *remap) Negotiate(in []media.Format) ([]media.Format, error) {
	f := in[0]
	if f.Type != media.MediaTypeVideo {
		return nil, fmt.Errorf("pixel remap on %s: %w", f.Type, media.ErrFormatMismatch)
	}
	if r.m.swap {
		// a transposed picture swaps the subsampling axes
		if sw, sh := f.Video.PixelFormat.ChromaShift(); sw != sh {
			return nil, fmt.Errorf("transposing %s: %w", f.Video.PixelFormat, media.ErrFormatMismatch)
		}
		f.Video.Width, f.Video.Height = f.Video.Height, f.Video.Width
	}
	r.format = f.Video
	return []media.Format{f}, nil
}

func (r *remap) Process(_ int, frame *media.Frame, emit func(int, *media.Frame)) error {
	if frame == nil {
		emit(0, nil)
		return nil
	}
	defer frame.Unref()
	if frame.Hardware() {
		return fmt.Errorf("pixel remap on a hardware frame: %w", media.ErrFormatMismatch)
	}

	out, err := media.AllocVideoFrame(r.format)
	if err != nil {
		return err
	}
	src := frame.Video()
	for i := 0; i < frame.PlaneCount(); i++ {
		sw, sh := src.PixelFormat.PlaneSize(i, src.Width, src.Height)
		dw, dh := r.format.PixelFormat.PlaneSize(i, r.format.Width, r.format.Height)
		bpp := src.PixelFormat.BytesPerPixel(i)
		in, dst := frame.Plane(i), out.Plane(i)
		inStride, dstStride := frame.Stride(i), out.Stride(i)

		for y := 0; y < dh; y++ {
			for x := 0; x < dw; x++ {
				sx, sy := r.m.at(x, y, sw, sh)
				copy(dst[y*dstStride+x*bpp:y*dstStride+(x+1)*bpp], in[sy*inStride+sx*bpp:])
			}
		}
	}
	out.CopyProps(frame)
	emit(0, out)
	return nil
}
