package mediasource

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Tracks keeps the local tracks of one peer connection by label.
type Tracks struct {
	tracks    map[string]*Track
	rtpTracks map[string]*RTPTrack
	mux       sync.RWMutex
	ctx       context.Context
}

func NewTracks(ctx context.Context) *Tracks {
	return &Tracks{
		tracks:    make(map[string]*Track),
		rtpTracks: make(map[string]*RTPTrack),
		ctx:       ctx,
	}
}

func (tracks *Tracks) exists(label string) bool {
	_, a := tracks.tracks[label]
	_, b := tracks.rtpTracks[label]
	return a || b
}

// CreateTrack creates a sample track and attaches it to pc when pc is not nil.
func (tracks *Tracks) CreateTrack(label string, pc *webrtc.PeerConnection, options ...TrackOption) (*Track, error) {
	tracks.mux.Lock()
	defer tracks.mux.Unlock()

	if tracks.exists(label) {
		return nil, fmt.Errorf("%s: %w", label, ErrTrackExists)
	}

	t, err := NewTrack(tracks.ctx, label, options...)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		if err := t.AttachTo(pc); err != nil {
			return nil, err
		}
	}

	tracks.tracks[label] = t
	return t, nil
}

func (tracks *Tracks) CreateRTPTrack(label string, pc *webrtc.PeerConnection, options ...TrackOption) (*RTPTrack, error) {
	tracks.mux.Lock()
	defer tracks.mux.Unlock()

	if tracks.exists(label) {
		return nil, fmt.Errorf("%s: %w", label, ErrTrackExists)
	}

	t, err := NewRTPTrack(tracks.ctx, label, options...)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		if err := t.AttachTo(pc); err != nil {
			return nil, err
		}
	}

	tracks.rtpTracks[label] = t
	return t, nil
}

func (tracks *Tracks) GetTrack(label string) (*Track, error) {
	tracks.mux.RLock()
	defer tracks.mux.RUnlock()

	t, ok := tracks.tracks[label]
	if !ok {
		return nil, fmt.Errorf("%s: %w", label, ErrTrackNotFound)
	}
	return t, nil
}

func (tracks *Tracks) GetRTPTrack(label string) (*RTPTrack, error) {
	tracks.mux.RLock()
	defer tracks.mux.RUnlock()

	t, ok := tracks.rtpTracks[label]
	if !ok {
		return nil, fmt.Errorf("%s: %w", label, ErrTrackNotFound)
	}
	return t, nil
}

func (tracks *Tracks) Tracks() iter.Seq2[string, *Track] {
	return func(yield func(string, *Track) bool) {
		tracks.mux.RLock()
		defer tracks.mux.RUnlock()

		for label, t := range tracks.tracks {
			if !yield(label, t) {
				return
			}
		}
	}
}

func (tracks *Tracks) RTPTracks() iter.Seq2[string, *RTPTrack] {
	return func(yield func(string, *RTPTrack) bool) {
		tracks.mux.RLock()
		defer tracks.mux.RUnlock()

		for label, t := range tracks.rtpTracks {
			if !yield(label, t) {
				return
			}
		}
	}
}
