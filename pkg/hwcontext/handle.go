// Package hwcontext models hardware devices and hardware frame pools as
// reference-counted handles. The handle returned by the constructor is the
// owner; every other holder gets a borrowed handle through Borrow. Borrowers
// only ever drop their own reference, and the resource is torn down when the
// last reference, owner or borrowed, is released.
package hwcontext

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrReleased      = errors.New("hwcontext: handle already released")
	ErrUnknownDevice = errors.New("hwcontext: unknown device type")
	ErrPoolExhausted = errors.New("hwcontext: frame pool exhausted")
	ErrForeignFrame  = errors.New("hwcontext: frame does not belong to this pool")
)

type shared[T any] struct {
	refs     atomic.Int32
	value    T
	teardown func(T) error
	once     sync.Once
	err      error
	gone     atomic.Bool
}

type handle[T any] struct {
	s        *shared[T]
	owner    bool
	released atomic.Bool
}

func newHandle[T any](value T, teardown func(T) error) *handle[T] {
	s := &shared[T]{value: value, teardown: teardown}
	s.refs.Store(1)
	return &handle[T]{s: s, owner: true}
}

func (h *handle[T]) borrow() (*handle[T], error) {
	if h.released.Load() || h.s.gone.Load() {
		return nil, ErrReleased
	}
	h.s.refs.Add(1)
	return &handle[T]{s: h.s}, nil
}

func (h *handle[T]) release() error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if h.s.refs.Add(-1) > 0 {
		return nil
	}

	h.s.once.Do(func() {
		h.s.gone.Store(true)
		if h.s.teardown != nil {
			h.s.err = h.s.teardown(h.s.value)
		}
	})
	return h.s.err
}

func (h *handle[T]) get() (T, error) {
	if h.released.Load() || h.s.gone.Load() {
		var zero T
		return zero, ErrReleased
	}
	return h.s.value, nil
}

func (h *handle[T]) refs() int {
	return int(h.s.refs.Load())
}
