package media

import "sync/atomic"

// Buffer is reference-counted plane storage shared between frames.
//
// Storage allocated by this package is owned and simply dropped on the last
// unref. Storage wrapped with WrapBuffer belongs to another subsystem (a
// hardware frame pool, a native decoder); its release hook only runs when the
// wrapper was explicitly marked as owned.
type Buffer struct {
	planes  [][]byte
	refs    atomic.Int32
	release func()
	owned   bool
}

func NewBuffer(planes [][]byte) *Buffer {
	b := &Buffer{planes: planes, owned: true}
	b.refs.Store(1)
	return b
}

func WrapBuffer(planes [][]byte, release func(), owned bool) *Buffer {
	b := &Buffer{planes: planes, release: release, owned: owned}
	b.refs.Store(1)
	return b
}

func (b *Buffer) Planes() [][]byte {
	return b.planes
}

func (b *Buffer) Owned() bool {
	return b.owned
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int {
	return int(b.refs.Load())
}

// Writable reports whether the caller holds the only reference.
func (b *Buffer) Writable() bool {
	return b.refs.Load() == 1
}

func (b *Buffer) ref() *Buffer {
	b.refs.Add(1)
	return b
}

func (b *Buffer) unref() {
	if b.refs.Add(-1) != 0 {
		return
	}
	if b.owned && b.release != nil {
		b.release()
	}
	b.planes = nil
}
