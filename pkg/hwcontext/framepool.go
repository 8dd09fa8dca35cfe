package hwcontext

import (
	"fmt"
	"sync"

	"github.com/harshabose/avpipe/pkg/media"
)

type pool struct {
	mux         sync.Mutex
	device      *Device
	format      media.VideoFormat
	size        int
	free        [][][]byte
	outstanding map[*media.Buffer]struct{}
}

// FramePool hands out hardware-resident video frames of one format backed by
// a device. Frames wrap pool memory without owning it: unreferencing a frame
// never frees pool storage, Put returns it.
type FramePool struct {
	h *handle[*pool]
}

// NewFramePool creates a pool of at most size frames. The pool borrows dev
// for its whole lifetime.
func NewFramePool(dev *Device, format media.VideoFormat, size int) (*FramePool, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("frame pool of size %d: %w", size, media.ErrAllocate)
	}

	borrowed, err := dev.Borrow()
	if err != nil {
		return nil, err
	}

	p := &pool{
		device:      borrowed,
		format:      format,
		size:        size,
		outstanding: make(map[*media.Buffer]struct{}),
	}
	return &FramePool{h: newHandle(p, func(p *pool) error { return p.device.Release() })}, nil
}

func (fp *FramePool) Borrow() (*FramePool, error) {
	h, err := fp.h.borrow()
	if err != nil {
		return nil, err
	}
	return &FramePool{h: h}, nil
}

func (fp *FramePool) Release() error {
	return fp.h.release()
}

func (fp *FramePool) Owner() bool {
	return fp.h.owner
}

func (fp *FramePool) Format() media.VideoFormat {
	return fp.h.s.value.format
}

// Device returns the pool's borrowed device handle.
func (fp *FramePool) Device() *Device {
	return fp.h.s.value.device
}

// Get returns a frame backed by pool storage.
func (fp *FramePool) Get() (*media.Frame, error) {
	p, err := fp.h.get()
	if err != nil {
		return nil, err
	}

	p.mux.Lock()
	defer p.mux.Unlock()

	var planes [][]byte
	switch {
	case len(p.free) > 0:
		planes = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	case len(p.outstanding) < p.size:
		planes = make([][]byte, p.format.PixelFormat.Planes())
		for i := range planes {
			w, h := p.format.PixelFormat.PlaneSize(i, p.format.Width, p.format.Height)
			planes[i] = make([]byte, w*p.format.PixelFormat.BytesPerPixel(i)*h)
		}
	default:
		return nil, ErrPoolExhausted
	}

	strides := make([]int, len(planes))
	for i := range strides {
		w, _ := p.format.PixelFormat.PlaneSize(i, p.format.Width, p.format.Height)
		strides[i] = w * p.format.PixelFormat.BytesPerPixel(i)
	}

	f, err := media.WrapVideoFrame(p.format, planes, strides, nil, false)
	if err != nil {
		return nil, err
	}
	f.SetHardware(true)
	p.outstanding[f.Buffer()] = struct{}{}
	return f, nil
}

// Put returns the frame's storage to the pool and empties the frame.
func (fp *FramePool) Put(f *media.Frame) error {
	p := fp.h.s.value

	p.mux.Lock()
	defer p.mux.Unlock()

	buf := f.Buffer()
	if _, ok := p.outstanding[buf]; !ok {
		return ErrForeignFrame
	}
	delete(p.outstanding, buf)

	planes := buf.Planes()
	f.Unref()
	if planes != nil {
		p.free = append(p.free, planes)
	}
	return nil
}

// Outstanding returns the number of frames handed out and not yet returned.
func (fp *FramePool) Outstanding() int {
	p := fp.h.s.value

	p.mux.Lock()
	defer p.mux.Unlock()

	return len(p.outstanding)
}
