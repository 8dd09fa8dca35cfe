package container

import (
	"io"
	"os"
)

// IO is the set of byte operations a container may use. A nil function means
// the capability is missing. The functions are called synchronously from the
// container methods and never retained past Close.
type IO struct {
	Read  func(p []byte) (int, error)
	Write func(p []byte) (int, error)
	Seek  func(offset int64, whence int) (int64, error)
}

// FileIO exposes every capability of f.
func FileIO(f *os.File) IO {
	return IO{Read: f.Read, Write: f.Write, Seek: f.Seek}
}

// ReaderIO reads from r, seeking too when r supports it.
func ReaderIO(r io.Reader) IO {
	c := IO{Read: r.Read}
	if s, ok := r.(io.Seeker); ok {
		c.Seek = s.Seek
	}
	return c
}

// WriterIO writes to w, seeking too when w supports it.
func WriterIO(w io.Writer) IO {
	c := IO{Write: w.Write}
	if s, ok := w.(io.Seeker); ok {
		c.Seek = s.Seek
	}
	return c
}

func (c IO) CanRead() bool  { return c.Read != nil }
func (c IO) CanWrite() bool { return c.Write != nil }
func (c IO) CanSeek() bool  { return c.Seek != nil }

type readFunc func([]byte) (int, error)

func (f readFunc) Read(p []byte) (int, error) {
	return f(p)
}
