// Package rtcapi builds the pion WebRTC API the media endpoints run on: the
// media engine codecs, the interceptor chain and the bandwidth estimator.
package rtcapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"

	"github.com/harshabose/avpipe/pkg/logging"
)

var (
	ErrNoEstimator      = errors.New("rtcapi: no bandwidth estimator for peer connection")
	ErrNoStatsCollector = errors.New("rtcapi: no stats getter for peer connection")
)

type API struct {
	mediaEngine         *webrtc.MediaEngine
	settingsEngine      *webrtc.SettingEngine
	interceptorRegistry *interceptor.Registry
	api                 *webrtc.API

	estimatorChan chan cc.BandwidthEstimator
	bandwidth     bool

	getterChan chan stats.Getter
	collector  bool
}

func NewAPI(options ...Option) (*API, error) {
	a := &API{
		mediaEngine:         &webrtc.MediaEngine{},
		settingsEngine:      &webrtc.SettingEngine{},
		interceptorRegistry: &interceptor.Registry{},
		estimatorChan:       make(chan cc.BandwidthEstimator, 10),
		getterChan:          make(chan stats.Getter, 10),
	}

	for _, option := range options {
		if err := option(a); err != nil {
			return nil, err
		}
	}

	a.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(a.mediaEngine),
		webrtc.WithInterceptorRegistry(a.interceptorRegistry),
		webrtc.WithSettingEngine(*a.settingsEngine),
	)
	return a, nil
}

func (a *API) MediaEngine() *webrtc.MediaEngine {
	return a.mediaEngine
}

func (a *API) NewPeerConnection(config webrtc.Configuration) (*webrtc.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	logging.WithComponent("rtcapi").Debug("peer connection created")
	return pc, nil
}

// NewPeerConnectionWithEstimator also returns the bandwidth estimator the
// congestion controller created for the new connection. The API must carry
// WithBandwidthControlInterceptor.
func (a *API) NewPeerConnectionWithEstimator(ctx context.Context, config webrtc.Configuration) (*webrtc.PeerConnection, cc.BandwidthEstimator, error) {
	if !a.bandwidth {
		return nil, nil, ErrNoEstimator
	}

	pc, err := a.NewPeerConnection(config)
	if err != nil {
		return nil, nil, err
	}

	// the estimator arrives through the interceptor callback while the
	// connection is built
	select {
	case estimator := <-a.estimatorChan:
		return pc, estimator, nil
	case <-ctx.Done():
		return nil, nil, errors.Join(ctx.Err(), pc.Close())
	case <-time.After(5 * time.Second):
		return nil, nil, errors.Join(ErrNoEstimator, pc.Close())
	}
}

// NewPeerConnectionWithStats also returns the getter of the stats interceptor
// for the new connection. The API must carry WithStatsCollector.
func (a *API) NewPeerConnectionWithStats(ctx context.Context, config webrtc.Configuration) (*webrtc.PeerConnection, stats.Getter, error) {
	if !a.collector {
		return nil, nil, ErrNoStatsCollector
	}

	pc, err := a.NewPeerConnection(config)
	if err != nil {
		return nil, nil, err
	}

	select {
	case getter := <-a.getterChan:
		return pc, getter, nil
	case <-ctx.Done():
		return nil, nil, errors.Join(ctx.Err(), pc.Close())
	case <-time.After(5 * time.Second):
		return nil, nil, errors.Join(ErrNoStatsCollector, pc.Close())
	}
}
